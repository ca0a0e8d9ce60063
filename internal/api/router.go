package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	if s.metrics.Enabled && s.promReg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Get("/{uniqueID}", s.handleGetEntity)
		})

		// Operator service commands; both are idempotent.
		r.Route("/services", func(r chi.Router) {
			r.Post("/refresh-all", s.handleRefreshAll)
			r.Post("/reconnect-push", s.handleReconnectPush)
		})

		// WebSocket entity state feed
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
