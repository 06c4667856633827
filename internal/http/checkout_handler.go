package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/checkout"
	"github.com/fjod/go_pos/internal/store"
)

const maxLineQuantity = 99

type CheckoutHandler struct {
	machine *checkout.Machine
	store   *store.Store
	timeout time.Duration
}

func NewCheckoutHandler(machine *checkout.Machine, st *store.Store, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		machine: machine,
		store:   st,
		timeout: timeout,
	}
}

type CartItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type StartCheckoutRequestDTO struct {
	Items []CartItemDTO `json:"items"`
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.machine.Snapshot())
}

// POST /api/v1/checkout/start
func (h *CheckoutHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req StartCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := h.buildCart(req.Items)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.machine.Start(cart); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.machine.Snapshot())
}

// POST /api/v1/checkout/submit
func (h *CheckoutHandler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var details checkout.Details
	if !decodeJSON(w, r, &details) {
		return
	}

	order, err := h.machine.Submit(ctx, details)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// POST /api/v1/checkout/retry
func (h *CheckoutHandler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	h.act(w, h.machine.Retry)
}

// POST /api/v1/checkout/cancel
func (h *CheckoutHandler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	h.act(w, h.machine.Cancel)
}

// POST /api/v1/checkout/reset
func (h *CheckoutHandler) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	h.act(w, h.machine.Reset)
}

func (h *CheckoutHandler) act(w http.ResponseWriter, action func() error) {
	if err := action(); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.machine.Snapshot())
}

// buildCart prices the requested items from the local product catalog.
func (h *CheckoutHandler) buildCart(items []CartItemDTO) (domain.Cart, error) {
	cart := make(domain.Cart, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > maxLineQuantity {
			return nil, domain.NewValidationError("quantity", fmt.Sprintf("must be between 1 and %d", maxLineQuantity))
		}
		p, ok := h.store.Product(it.ProductID)
		if !ok {
			return nil, domain.NewValidationError("product_id", fmt.Sprintf("unknown product %q", it.ProductID))
		}
		cart = append(cart, lineFor(p, it.Quantity))
	}
	return cart, nil
}

func lineFor(p domain.Product, quantity int) domain.CartLine {
	return domain.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: p.Price,
		UnitCost:  p.Cost,
		Quantity:  quantity,
	}
}
