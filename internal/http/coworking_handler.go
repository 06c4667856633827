package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/store"
	"github.com/go-chi/chi/v5"
)

type CoworkingHandler struct {
	desk    *ledger.Desk
	store   *store.Store
	timeout time.Duration
	now     func() time.Time
}

func NewCoworkingHandler(desk *ledger.Desk, st *store.Store, timeout time.Duration) *CoworkingHandler {
	return &CoworkingHandler{desk: desk, store: st, timeout: timeout, now: time.Now}
}

type StartCoworkingRequestDTO struct {
	ClientName string `json:"client_name"`
	Nonce      string `json:"nonce,omitempty"`
}

type AddExtraRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Nonce     string `json:"nonce,omitempty"`
}

type FinishCoworkingRequestDTO struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	EndTime       *time.Time           `json:"end_time,omitempty"`
}

// GET /api/v1/coworking
func (h *CoworkingHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	active := h.desk.Active()
	if active == nil {
		active = []domain.CoworkingSession{}
	}
	respondJSON(w, http.StatusOK, active)
}

// POST /api/v1/coworking
func (h *CoworkingHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req StartCoworkingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.desk.Start(ctx, req.ClientName, requestNonce(r, req.Nonce))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// POST /api/v1/coworking/{session_id}/extras
func (h *CoworkingHandler) AddExtra(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddExtraRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	p, ok := h.store.Product(req.ProductID)
	if !ok {
		handleError(w, domain.NewValidationError("product_id", fmt.Sprintf("unknown product %q", req.ProductID)))
		return
	}
	s, err := h.desk.AddExtra(ctx, chi.URLParam(r, "session_id"), lineFor(p, req.Quantity), requestNonce(r, req.Nonce))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// GET /api/v1/coworking/{session_id}/quote
func (h *CoworkingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.desk.Quote(chi.URLParam(r, "session_id"), h.now())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// POST /api/v1/coworking/{session_id}/finish
func (h *CoworkingHandler) FinishSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req FinishCoworkingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	var end time.Time
	if req.EndTime != nil {
		end = *req.EndTime
	}
	res, err := h.desk.Finish(ctx, chi.URLParam(r, "session_id"), req.PaymentMethod, end)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// DELETE /api/v1/coworking/{session_id}
func (h *CoworkingHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.desk.Cancel(ctx, chi.URLParam(r, "session_id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
