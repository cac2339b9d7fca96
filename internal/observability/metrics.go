package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analysis service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	FetchesTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	EnrichmentsTotal  *prometheus.CounterVec
	PhotoSelections   *prometheus.CounterVec

	// Generation backend metrics
	GenerationRequestsTotal *prometheus.CounterVec
	GenerationTokensUsed    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "prodscope"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		PipelineRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Total number of competitor analysis runs",
			},
			[]string{"status"},
		),
		PipelineDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Duration of a full analysis run",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"status"},
		),
		FetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of page fetches by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Page fetch duration by tier",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"tier"},
		),
		EnrichmentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichments_total",
				Help:      "Enrichment outcomes: ok, fallback (unparsable output), error",
			},
			[]string{"outcome"},
		),
		PhotoSelections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "photo_selections_total",
				Help:      "Where the attached photo came from: selected, og_image, none",
			},
			[]string{"source"},
		),
		GenerationRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_requests_total",
				Help:      "Requests to the text-generation backend",
			},
			[]string{"status"},
		),
		GenerationTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_tokens_total",
				Help:      "Tokens consumed by the text-generation backend",
			},
			[]string{"direction"},
		),
	}
}

// ObserveFetch records one fetch attempt.
func (m *Metrics) ObserveFetch(tier int, outcome string, d time.Duration) {
	t := strconv.Itoa(tier)
	m.FetchesTotal.WithLabelValues(t, outcome).Inc()
	m.FetchDuration.WithLabelValues(t).Observe(d.Seconds())
}

// ObserveEnrichment records one enrichment outcome.
func (m *Metrics) ObserveEnrichment(outcome string) {
	m.EnrichmentsTotal.WithLabelValues(outcome).Inc()
}

// ObservePhotoSource records where the attached photo came from.
func (m *Metrics) ObservePhotoSource(source string) {
	m.PhotoSelections.WithLabelValues(source).Inc()
}

// ObservePipeline records one completed analysis run.
func (m *Metrics) ObservePipeline(status string, d time.Duration) {
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
	m.PipelineDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveGeneration records one text-generation request.
func (m *Metrics) ObserveGeneration(status string, tokensIn, tokensOut int) {
	m.GenerationRequestsTotal.WithLabelValues(status).Inc()
	if tokensIn > 0 {
		m.GenerationTokensUsed.WithLabelValues("input").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		m.GenerationTokensUsed.WithLabelValues("output").Add(float64(tokensOut))
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware instruments HTTP handlers.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
