package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/checkout"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/fjod/go_pos/internal/transport"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleError converts a terminal error into a status code.
func handleError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var upstream *transport.HTTPError

	var status int
	var code string
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.As(err, &validation):
		status, code = http.StatusBadRequest, "validation_failed"
	case checkout.IsIllegalTransition(err):
		status, code = http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, submit.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		status, code = http.StatusConflict, "cancelled"
	case errors.Is(err, transport.ErrUnavailable),
		errors.Is(err, submit.ErrRetriesExhausted),
		errors.As(err, &upstream):
		status, code = http.StatusBadGateway, "store_unavailable"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}
	respondError(w, status, code, err.Error())
}
