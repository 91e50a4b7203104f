/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the review page

ROUTE GROUPS:
  /api/mapping/*        Identity review
  /api/references       Tree scan
  /api/reports/*        Verification
  /api/statements/*     Import plan
  /api/import           Import
  /api/scenarios/*      Canned review sessions

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/consolidate/main.go: serve command
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Identity review
		r.Route("/mapping", func(r chi.Router) {
			r.Get("/", h.ListMapping)
			r.Get("/{name}", h.GetMappingEntry)
			r.Post("/{name}/confirm", h.ConfirmMapping)
		})

		// Source tree
		r.Get("/references", h.GetReferences)
		r.Get("/reports/verify", h.GetVerification)

		// Import plan
		r.Route("/statements", func(r chi.Router) {
			r.Get("/", h.ListStatements)
			r.Get("/script", h.GetScript)
		})
		r.Post("/import", h.RunImport)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "checkloops consolidation review",
			"endpoints": []string{
				"/api/mapping", "/api/references", "/api/reports/verify",
				"/api/statements", "/api/statements/script", "/api/scenarios",
			},
		})
	})

	return r
}
