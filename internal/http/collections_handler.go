package http

import (
	"fmt"
	"net/http"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
	"github.com/go-chi/chi/v5"
)

// CollectionsHandler serves read-only views of the local store.
type CollectionsHandler struct {
	store *store.Store
}

func NewCollectionsHandler(st *store.Store) *CollectionsHandler {
	return &CollectionsHandler{store: st}
}

// GET /api/v1/collections/{collection}
func (h *CollectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	e, ok := domain.ParseEntityType(name)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_collection", fmt.Sprintf("unknown collection %q", name))
		return
	}
	items, err := h.store.List(e)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}
