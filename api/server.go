/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/rating/*    Rating table maintenance and diagnostics
  /api/quotes      Premium calculation
  /api/policies/*  Policy lifecycle
  /api/admin/*     Catalog seeding
  /api/health      Liveness

SECURITY NOTE:
  No authentication middleware; the surrounding application owns authn/z
  and fronts this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
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
		// Rating table routes (administrative)
		r.Route("/rating/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Get("/expired", h.ListExpiredEntries)
			r.Get("/future", h.ListFutureEntries)
			r.Post("/{id}/correct", h.CorrectEntry)
			r.Delete("/{id}", h.DeleteEntry)
		})

		// Quote routes
		r.Post("/quotes", h.Quote)

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Post("/", h.IssuePolicy)
			r.Get("/{number}", h.GetPolicy)
			r.Post("/{number}/cancel", h.CancelPolicy)
			r.Put("/{number}/dates", h.AmendPolicyDates)
			r.Get("/{number}/breakdown", h.GetBreakdown)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/seed", h.SeedCatalog)
		})

		r.Get("/health", h.Health)
	})

	return r
}
