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
	r.Route("/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints that carry their own credentials
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout_all", s.handleLogoutAll)

			// Profile endpoints
			r.Route("/profile", func(r chi.Router) {
				r.Get("/me", s.handleGetProfile)
				r.Put("/me", s.handleUpdateProfile)
				r.Post("/me", s.handleUpdateProfile) // PUT alias kept for older clients
			})

			// Billing endpoints
			r.Route("/billing", func(r chi.Router) {
				r.Get("/status", s.handleBillingStatus)
				r.Post("/rustore/confirm", s.handleBillingConfirm)
			})

			// Project and sync endpoints
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProject)
					r.Patch("/", s.handleUpdateProject)
					r.Delete("/", s.handleDeleteProject)
					r.Get("/tree", s.handleProjectTree)
					r.Get("/delta", s.handleDelta)
					r.With(s.rateLimitMiddleware("batch")).Post("/batch", s.handleBatch)
				})
			})

			// Audit trail (requester's own activity)
			r.Get("/audit", s.handleListAudit)
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
