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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Entity state endpoints
			r.Route("/states", func(r chi.Router) {
				r.Get("/", s.handleListStates)

				r.Route("/{entityID}", func(r chi.Router) {
					r.Get("/", s.handleGetState)
					r.Post("/", s.handleSetState)
					r.Delete("/", s.handleRemoveState)
				})
			})

			// Service registry endpoints
			r.Route("/services", func(r chi.Router) {
				r.Get("/", s.handleListServices)
				r.Post("/{domain}/{service}", s.handleCallService)
			})

			// Event bus endpoints
			r.Route("/events", func(r chi.Router) {
				r.Get("/", s.handleListEvents)
				r.Post("/{eventType}", s.handleFireEvent)
			})

			// Audit trail
			r.Get("/audit", s.handleListAudit)

			// Installation-level configuration
			r.Route("/config", func(r chi.Router) {
				r.Get("/", s.handleGetCoreConfig)
				r.Post("/", s.handleUpdateCoreConfig)
			})
		})
	})

	// WebSocket event stream (auth via access_token query parameter,
	// validated in the handler).
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/api/websocket"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status and hub run state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"run_state": string(s.hub.State()),
	})
}
