package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kioskfleet/fleet-core/internal/auth"
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

		// Command catalog (no auth required; static reference data)
		r.Get("/commands", s.handleListCommands)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)
				r.With(s.requirePermission(auth.PermDeviceManage)).Post("/", s.handleCreateDevice)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/stats", s.handleFleetStats)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(s.requirePermission(auth.PermDeviceManage)).Patch("/", s.handleUpdateDevice)
					r.With(s.requirePermission(auth.PermDeviceManage)).Delete("/", s.handleDeleteDevice)

					r.With(s.requirePermission(auth.PermHeartbeatPost)).Post("/heartbeat", s.handleHeartbeat)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/status", s.handleGetStatus)
					r.With(s.requirePermission(auth.PermStatusOverride)).Put("/status", s.handleSetStatus)

					r.With(s.requirePermission(auth.PermLogRead)).Get("/logs", s.handleListLogs)
					r.With(s.requirePermission(auth.PermCommandSend)).Post("/command", s.handleDispatchCommand)
				})
			})

			// Group endpoints
			r.Route("/groups", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListGroups)
				r.With(s.requirePermission(auth.PermGroupManage)).Post("/", s.handleCreateGroup)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetGroup)
					r.With(s.requirePermission(auth.PermGroupManage)).Patch("/", s.handleUpdateGroup)
					r.With(s.requirePermission(auth.PermGroupManage)).Delete("/", s.handleDeleteGroup)
				})
			})

			// WebSocket (auth via bearer token or token query parameter)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
