package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_pos/domain"
)

var ErrUnavailable = errors.New("store unavailable")

// HTTPError is a non-2xx answer from the store.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("store returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the fault is on the server side or transient.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// Is maps status codes onto the domain sentinels so callers can branch
// with errors.Is without knowing about HTTP.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case domain.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrValidation:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

func (e *HTTPError) clientFault() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && !e.Retryable()
}

// unavailableError wraps a call rejected by the open circuit breaker.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string        { return "store unavailable: " + e.cause.Error() }
func (e *unavailableError) Unwrap() error        { return e.cause }
func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }
func (e *unavailableError) Retryable() bool      { return true }
