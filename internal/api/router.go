package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/prodscope/prodscope/internal/api/handlers"
	"github.com/prodscope/prodscope/internal/api/middleware"
	"github.com/prodscope/prodscope/internal/observability"
	"github.com/prodscope/prodscope/internal/services/intel"
	"github.com/prodscope/prodscope/pkg/httputil"
)

// RouterConfig contains dependencies for the router.
type RouterConfig struct {
	Pipeline     *intel.Pipeline
	FetchOptions intel.FetchOptions
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	EnableCORS   bool
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}
	// Fetch plus enrichment for a slow host can take a while.
	r.Use(chimw.Timeout(3 * time.Minute))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	analyze := handlers.NewAnalyzeHandler(cfg.Pipeline, cfg.FetchOptions, cfg.Logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", analyze.Analyze)
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
