package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CashHandler struct {
	ledger  *ledger.Ledger
	timeout time.Duration
}

func NewCashHandler(l *ledger.Ledger, timeout time.Duration) *CashHandler {
	return &CashHandler{ledger: l, timeout: timeout}
}

type OpenSessionRequestDTO struct {
	StartAmount decimal.Decimal `json:"start_amount"`
}

type CloseSessionRequestDTO struct {
	CountedAmount decimal.Decimal `json:"counted_amount"`
}

type CloseSessionResponseDTO struct {
	Session domain.CashSession `json:"session"`
	Summary ledger.Summary     `json:"summary"`
}

type WithdrawalRequestDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Nonce       string          `json:"nonce,omitempty"`
}

// GET /api/v1/cash/current
func (h *CashHandler) CurrentSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.ledger.CurrentSummary()
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// POST /api/v1/cash/open
func (h *CashHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req OpenSessionRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	cs, err := h.ledger.Open(ctx, req.StartAmount)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cs)
}

// GET /api/v1/cash/{session_id}/summary
func (h *CashHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.ledger.Summary(chi.URLParam(r, "session_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// POST /api/v1/cash/{session_id}/close
func (h *CashHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CloseSessionRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	cs, sum, err := h.ledger.Close(ctx, chi.URLParam(r, "session_id"), req.CountedAmount)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CloseSessionResponseDTO{Session: cs, Summary: sum})
}

// GET /api/v1/cash/history
func (h *CashHandler) History(w http.ResponseWriter, r *http.Request) {
	history := h.ledger.History()
	if history == nil {
		history = []domain.CashSession{}
	}
	respondJSON(w, http.StatusOK, history)
}

// POST /api/v1/cash/withdrawals
func (h *CashHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req WithdrawalRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	wd, err := h.ledger.Withdraw(ctx, req.Amount, req.Description, requestNonce(r, req.Nonce))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wd)
}

// DELETE /api/v1/cash/withdrawals/{withdrawal_id}
func (h *CashHandler) DeleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.ledger.DeleteWithdrawal(ctx, chi.URLParam(r, "withdrawal_id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
