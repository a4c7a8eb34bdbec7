package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Controller connectivity
			r.Get("/status", s.handleStatus)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/reconnect", s.handleReconnect)
			r.Post("/services", s.handleCallService)

			// Live entity snapshot
			r.Route("/entities", func(r chi.Router) {
				r.Get("/", s.handleListEntities)
				r.Get("/{id}", s.handleGetEntity)
			})
			r.Get("/events", s.handleListEvents)
			r.Get("/history/{id}", s.handleEntityHistory)
			r.Get("/audit", s.handleListAudit)

			// Device catalog
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Post("/discover", s.handleDiscoverDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/bind", s.handleBindDevice)
					r.Post("/unbind", s.handleUnbindDevice)
				})
			})
		})
	})

	// WebSocket sits outside the bearer-header group: browsers cannot
	// set headers on WebSocket dials, so the handler validates a token
	// query parameter itself.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
