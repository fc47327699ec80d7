// Package api wires the HTTP handlers and middleware into a router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/climate-risk/internal/api/handlers"
	"github.com/dvloznov/climate-risk/internal/api/middleware"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Runs      *handlers.RunsHandler
	Reference *handlers.ReferenceHandler
}

// RouterOptions configures the middleware chain.
type RouterOptions struct {
	// RateLimit is requests per second per client. Zero disables limiting.
	RateLimit float64
	Burst     int
	// AllowedOrigins lists the CORS origins. Empty allows any.
	AllowedOrigins []string
}

// NewRouter builds the HTTP handler.
func NewRouter(h Handlers, opts RouterOptions, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.RateLimit(opts.RateLimit, opts.Burst))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.Runs.ListRuns)
			r.Post("/", h.Runs.CreateRun)
			r.Get("/{id}", h.Runs.GetRun)
		})
		r.Get("/risk-weight", h.Reference.RiskWeight)
		r.Get("/risk-weights", h.Reference.RiskWeightTable)
		r.Get("/scenarios", h.Reference.ListScenarios)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
