/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters and latency
  5. CORS:       Cross-origin requests for the estimating frontend

ROUTE GROUPS:
  /api/configuration    Salary configuration
  /api/positions/*      Labor positions
  /api/budgets/*        Budgets, compositions, reports, exports
  /api/tax-brackets     Revenue tax schedule
  /api/policy           Pricing policy document
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint
  /healthz              Liveness + storage ping

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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

// RouterOptions tunes the router.
type RouterOptions struct {
	// CORSOrigins lists allowed browser origins. Empty allows any.
	CORSOrigins []string
	// RequestLogging turns on chi's request logger.
	RequestLogging bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	if opts.RequestLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method("GET", "/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/configuration", h.GetConfiguration)
		r.Put("/configuration", h.UpdateConfiguration)

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", h.ListPositions)
			r.Post("/", h.CreatePosition)
			r.Get("/{id}", h.GetPosition)
			r.Patch("/{id}", h.UpdatePosition)
			r.Delete("/{id}", h.DeletePosition)
			r.Post("/{id}/restore", h.RestorePosition)
		})

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", h.ListBudgets)
			r.Post("/", h.CreateBudget)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetBudget)
				r.Patch("/", h.UpdateBudget)
				r.Delete("/", h.DeleteBudget)

				r.Post("/compositions", h.AddComposition)
				r.Get("/compositions/{cid}", h.GetComposition)
				r.Put("/compositions/{cid}", h.UpdateComposition)
				r.Delete("/compositions/{cid}", h.RemoveComposition)

				r.Get("/report", h.GetReport)
				r.Get("/export.xlsx", h.ExportExcel)
				r.Get("/export.pdf", h.ExportPDF)
			})
		})

		r.Get("/tax-brackets", h.ListTaxBrackets)
		r.Get("/policy", h.GetPolicy)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
