// Package http exposes the terminal core to the local UI over a loopback
// JSON API.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_pos/internal/checkout"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Health is reported on GET /health.
type Health struct {
	Status      string `json:"status"`
	Channel     string `json:"channel"`
	Polling     bool   `json:"polling"`
	Checkout    string `json:"checkout"`
	Submissions int    `json:"pending_submissions"`
}

type RouterConfig struct {
	Checkout    *CheckoutHandler
	Cash        *CashHandler
	Coworking   *CoworkingHandler
	Collections *CollectionsHandler
	Orders      *OrdersHandler
	Channel     *ChannelHandler
	Health      func() Health
	Granted     checkout.Permissions
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}
	r.Use(OperatorMiddleware(cfg.Granted))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h := Health{Status: "ok"}
		if cfg.Health != nil {
			h = cfg.Health()
		}
		respondJSON(w, http.StatusOK, h)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if h := cfg.Checkout; h != nil {
			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", h.GetCheckout)
				r.Post("/start", h.StartCheckout)
				r.Post("/submit", h.SubmitCheckout)
				r.Post("/retry", h.RetryCheckout)
				r.Post("/cancel", h.CancelCheckout)
				r.Post("/reset", h.ResetCheckout)
			})
		}
		if h := cfg.Cash; h != nil {
			r.Route("/cash", func(r chi.Router) {
				r.Get("/current", h.CurrentSummary)
				r.Get("/history", h.History)
				r.Post("/open", h.OpenSession)
				r.Get("/{session_id}/summary", h.Summary)
				r.Post("/{session_id}/close", h.CloseSession)
				r.Post("/withdrawals", h.Withdraw)
				r.Delete("/withdrawals/{withdrawal_id}", h.DeleteWithdrawal)
			})
		}
		if h := cfg.Coworking; h != nil {
			r.Route("/coworking", func(r chi.Router) {
				r.Get("/", h.ListActive)
				r.Post("/", h.StartSession)
				r.Post("/{session_id}/extras", h.AddExtra)
				r.Get("/{session_id}/quote", h.Quote)
				r.Post("/{session_id}/finish", h.FinishSession)
				r.Delete("/{session_id}", h.CancelSession)
			})
		}
		if h := cfg.Orders; h != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Get("/{order_id}", h.GetOrder)
				r.Delete("/{order_id}", h.DeleteOrder)
			})
		}
		if h := cfg.Channel; h != nil {
			r.Route("/channel", func(r chi.Router) {
				r.Get("/", h.Status)
				r.Post("/resume", h.Resume)
				r.Post("/disconnect", h.Disconnect)
				r.Put("/online", h.SetOnline)
				r.Put("/visibility", h.SetVisibility)
			})
		}
		if h := cfg.Collections; h != nil {
			r.Get("/collections/{collection}", h.List)
		}
	})

	return otelhttp.NewHandler(r, "terminal-api")
}
