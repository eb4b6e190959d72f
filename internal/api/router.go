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

		// Auth endpoints (no auth required)
		r.Post("/auth/token", s.handleToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/system/info", s.handleSystemInfo)
			r.Get("/audit", s.handleListAudit)

			// Device registry endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Get("/stats", s.handleDeviceStats)
				r.Post("/reconnect", s.handleReconnectAll)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/connect", s.handleConnectDevice)
					r.Post("/disconnect", s.handleDisconnectDevice)
					r.Get("/health", s.handleDeviceHealth)

					// Passthrough to the live device connection
					r.Get("/info", s.handleDeviceInfo)
					r.Route("/users", func(r chi.Router) {
						r.Get("/", s.handleListUsers)
						r.Get("/{userID}", s.handleGetUser)
						r.Put("/{userID}", s.handleSetUser)
						r.Delete("/{userID}", s.handleDeleteUser)
					})
					r.Route("/attendance", func(r chi.Router) {
						r.Get("/", s.handleGetAttendance)
						r.Delete("/", s.handleEraseAttendance)
					})
					r.Route("/enroll", func(r chi.Router) {
						r.Post("/", s.handleBeginEnroll)
						r.Get("/{jobID}", s.handleEnrollStatus)
						r.Post("/{jobID}/wait", s.handleEnrollWait)
						r.Delete("/{jobID}", s.handleCancelEnroll)
						r.Delete("/", s.handleCancelAllEnrolls)
					})
					r.Get("/time", s.handleGetDeviceTime)
					r.Put("/time", s.handleSetDeviceTime)
					r.Post("/lock", s.handleLockDevice)
					r.Post("/unlock", s.handleUnlockDevice)
					r.Post("/control", s.handleDeviceControl)
				})
			})

			// Bulk operation endpoints
			r.Route("/bulk", func(r chi.Router) {
				r.Get("/", s.handleListBulkOperations)
				r.Post("/", s.handleSubmitBulkOperation)
				r.Get("/{id}", s.handleGetBulkOperation)
				r.Post("/{id}/cancel", s.handleCancelBulkOperation)
			})

			// WebSocket (auth via ticket, validated in handler)
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
