package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/pkg/health"
	"github.com/utafrali/docsearch/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "docsearch"

// RouterConfig holds the HTTP layer options.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	// PprofCIDRs enables /debug/pprof for clients in these ranges.
	PprofCIDRs []string
	RateLimit  middleware.RateLimitConfig
}

// NewRouter creates a chi router with all docsearch routes registered.
func NewRouter(
	svc *service.SearchService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	schemas := NewSchemaHandler(svc, logger)
	documents := NewDocumentHandler(svc, logger)
	search := NewSearchHandler(svc, logger)
	indices := NewIndexHandler(svc, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, logger))
		r.Get("/schemas/{index}/{type}", schemas.Describe)
		r.Get("/schemas/{index}/{type}/_mapping", schemas.Mapping)
		r.Delete("/indices/{index}", indices.Drop)
		r.Post("/indices/{index}/_refresh", indices.Refresh)
		r.Get("/documents/{index}/{type}", documents.List)
		r.Get("/documents/{index}/{type}/{id}", documents.Get)
		r.Delete("/documents/{index}/{type}/{id}", documents.Delete)
		r.Get("/search", search.SearchGet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.Put("/schemas/{index}/{type}", schemas.Declare)
			r.Post("/documents/{index}/{type}", documents.Create)
			r.Post("/documents/{index}/{type}/_bulk", documents.Bulk)
			r.Put("/documents/{index}/{type}/{id}", documents.Put)
			r.Post("/search", search.Search)
		})
	})

	return r
}
