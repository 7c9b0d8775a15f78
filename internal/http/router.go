// Package http exposes the cart and checkout API over chi.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	Cart      *CartHandler
	Checkout  *CheckoutHandler
	Metrics   *metrics.ServerMetrics
	Logger    *slog.Logger
	JWTSecret []byte

	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Stripe signs its calls, it carries no bearer token
		r.Post("/checkout/webhook", cfg.Checkout.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))
			r.Use(middleware.AllowContentType("application/json"))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Cart.GetCart)
				r.Post("/", cfg.Cart.CreateCart)
				r.Post("/create", cfg.Cart.CreateCart)
				r.Delete("/", cfg.Cart.ClearCart)
				r.Post("/items", cfg.Cart.AddItem)
				r.Patch("/items/{itemId}", cfg.Cart.UpdateQuantity)
				r.Put("/items/{itemId}", cfg.Cart.UpdateQuantity)
				r.Delete("/items/{itemId}", cfg.Cart.RemoveItem)
			})

			r.Post("/checkout/create-session", cfg.Checkout.CreateSession)
			r.Post("/checkout/create-checkout-session", cfg.Checkout.CreateSession)
		})
	})

	return r
}
