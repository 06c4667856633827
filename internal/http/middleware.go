package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_pos/internal/checkout"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	permissionsKey
)

// PermissionsHeader lists the permissions the operator at the terminal
// asks for, comma separated.
const PermissionsHeader = "X-Operator-Permissions"

// IdempotencyKeyHeader carries the nonce of a user action when the body
// has none. Resending a request with the same nonce repeats the action.
const IdempotencyKeyHeader = "Idempotency-Key"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", getRequestID(r.Context()))
		})
	}
}

// OperatorMiddleware attaches the permissions requested by the operator,
// limited to those the terminal grants.
func OperatorMiddleware(granted checkout.Permissions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var perms checkout.Permissions
			for _, p := range strings.Split(r.Header.Get(PermissionsHeader), ",") {
				perm := checkout.Permission(strings.TrimSpace(p))
				if perm != "" && granted.Allowed(r.Context(), perm) {
					perms = append(perms, perm)
				}
			}
			ctx := context.WithValue(r.Context(), permissionsKey, perms)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorAuthorizer reads the permissions OperatorMiddleware attached.
type OperatorAuthorizer struct{}

func (OperatorAuthorizer) Allowed(ctx context.Context, p checkout.Permission) bool {
	perms, _ := ctx.Value(permissionsKey).(checkout.Permissions)
	return perms.Allowed(ctx, p)
}

// requestNonce prefers the body nonce over the header one. Empty means
// the request is a new action.
func requestNonce(r *http.Request, body string) string {
	if n := strings.TrimSpace(body); n != "" {
		return n
	}
	return strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
}
