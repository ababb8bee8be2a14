/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the point-of-sale frontend

ROUTE GROUPS:
  /api/clients/*        Client accounts, balances, purchase history, VINs
  /api/purchases        Purchase recording
  /api/transactions/*   Refunds
  /api/vins/*           VIN updates and removal
  /api/sales/*          Daily rollups and per-day transaction listings
  /healthz              Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Post("/bonus-balances", h.BatchBonusBalances)
			r.Get("/{id}", h.GetClient)
			r.Put("/{id}", h.UpdateClient)
			r.Delete("/{id}", h.DeleteClient)
			r.Get("/{id}/bonus", h.GetClientBonus)
			r.Get("/{id}/purchases", h.ListClientPurchases)
			r.Get("/{id}/vins", h.ListVINs)
			r.Post("/{id}/vins", h.AddVIN)
		})

		// Purchase and refund routes
		r.Post("/purchases", h.CreatePurchase)
		r.Post("/transactions/{id}/refund", h.RefundTransaction)

		// VIN routes
		r.Route("/vins", func(r chi.Router) {
			r.Put("/{id}", h.UpdateVIN)
			r.Delete("/{id}", h.DeleteVIN)
		})

		// Sales routes
		r.Route("/sales", func(r chi.Router) {
			r.Get("/daily", h.DailySales)
			r.Get("/transactions", h.SalesTransactions)
		})
	})

	// Liveness probe
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
