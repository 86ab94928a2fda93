// Package api assembles the HTTP routes of the themes service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/formbricks/themes/internal/api/handlers"
	"github.com/formbricks/themes/internal/api/middleware"
	"github.com/formbricks/themes/internal/observability"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Routes are the handlers mounted by NewRouter. Metrics is nil unless the Prometheus exporter is
// enabled; APIMetrics is nil when metrics are disabled.
type Routes struct {
	Health       *handlers.HealthHandler
	Clustering   *handlers.ClusteringHandler
	Themes       *handlers.ThemesHandler
	Scoring      *handlers.ScoringHandler
	Metrics      http.Handler
	APIMetrics   observability.APIMetrics
	MaxBodyBytes int64
}

// NewRouter builds the chi router. Request ids, tracing and access logging wrap it in the server.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	var (
		tooLarge middleware.RequestBodyTooLargeRecorder
		problems middleware.ProblemRecorder
	)

	if rt.APIMetrics != nil {
		tooLarge = rt.APIMetrics
		problems = rt.APIMetrics
	}

	r.Get("/health", rt.Health.Check)

	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Problems(problems))
		r.Use(middleware.MaxBody(rt.MaxBodyBytes, tooLarge))

		r.Route("/clustering", func(r chi.Router) {
			r.Post("/runs", rt.Clustering.StartRun)
			r.Get("/runs/{id}", rt.Clustering.GetRun)
			r.Get("/status", rt.Clustering.Status)
		})

		r.Route("/themes", func(r chi.Router) {
			r.Get("/", rt.Themes.List)
			r.Get("/{id}", rt.Themes.Get)
			r.Get("/{id}/similar", rt.Themes.Similar)
		})

		r.Get("/insights", rt.Themes.ListInsights)

		r.Route("/scoring/config", func(r chi.Router) {
			r.Get("/", rt.Scoring.Get)
			r.Put("/", rt.Scoring.Update)
			r.Delete("/", rt.Scoring.Reset)
		})
	})

	return r
}
