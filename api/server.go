/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer between URLs and handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the reporting frontend

SECURITY NOTE:
  No authentication middleware. Dashboard access control is handled by
  the reporting layer in front of this engine.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/rentroll: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/load", h.LoadLedger)

		r.Post("/reconcile", h.Reconcile)
		r.Get("/rentroll", h.RentRoll)
		r.Get("/findings", h.Findings)
		r.Get("/runs", h.ListRuns)

		r.Route("/export", func(r chi.Router) {
			r.Get("/rentroll.csv", h.ExportRentRoll)
			r.Get("/findings.csv", h.ExportFindings)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/purge-orphans", h.PurgeOrphans)
			r.Post("/remediate-dates", h.RemediateDates)
		})

		r.Get("/backups/{ref}", h.GetBackup)
	})

	// Prometheus metrics on the handler's own registry
	r.Handle("/metrics", promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
