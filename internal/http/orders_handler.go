package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/go-chi/chi/v5"
)

// OrderDeleter removes an Order from the authoritative store.
type OrderDeleter interface {
	DeleteOrder(ctx context.Context, id string) error
}

type OrdersHandler struct {
	orders    OrderDeleter
	store     *store.Store
	submitter *submit.Service
	timeout   time.Duration
}

func NewOrdersHandler(orders OrderDeleter, st *store.Store, submitter *submit.Service, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:    orders,
		store:     st,
		submitter: submitter,
		timeout:   timeout,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.store.Orders()
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}
	o, ok := h.store.Order(orderID)
	if !ok {
		handleError(w, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound))
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// DELETE /api/v1/orders/{order_id}
func (h *OrdersHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "order_id")
	if _, ok := h.store.Order(orderID); !ok {
		handleError(w, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound))
		return
	}

	if _, err := h.submitter.Do(ctx, submit.Key("order-delete", orderID), func(ctx context.Context) (any, error) {
		return nil, h.orders.DeleteOrder(ctx, orderID)
	}); err != nil {
		handleError(w, err)
		return
	}
	if err := h.store.Apply(domain.Event{Entity: domain.EntityOrder, Action: domain.EventDelete, ID: orderID}); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
