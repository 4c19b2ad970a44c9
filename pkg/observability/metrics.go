package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	EventsIngestedTotal  prometheus.Counter
	EventsDuplicateTotal prometheus.Counter
	IngestBatchSize      prometheus.Histogram

	// Alert detector metrics
	AlertsRaisedTotal     *prometheus.CounterVec
	AlertsResolvedTotal   *prometheus.CounterVec
	DetectorFailuresTotal prometheus.Counter

	// Aggregation metrics
	AggregationRunsTotal *prometheus.CounterVec
	AggregationDuration  prometheus.Histogram

	// Storage metrics
	StorageErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "telemetry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		EventsIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_events_ingested_total",
				Help: "Total number of events accepted for ingestion",
			},
		),
		EventsDuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_events_duplicate_total",
				Help: "Total number of events dropped as duplicates",
			},
		),
		IngestBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "telemetry_ingest_batch_size",
				Help:    "Number of events per ingest request",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		AlertsRaisedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_alerts_raised_total",
				Help: "Total number of anomaly alerts raised",
			},
			[]string{"alert_type", "severity"},
		),
		AlertsResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_alerts_resolved_total",
				Help: "Total number of anomaly alerts auto-resolved",
			},
			[]string{"alert_type"},
		),
		DetectorFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_detector_failures_total",
				Help: "Total number of failed anomaly detector runs",
			},
		),

		AggregationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_aggregation_runs_total",
				Help: "Total number of daily rollup runs",
			},
			[]string{"status"},
		),
		AggregationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "telemetry_aggregation_duration_seconds",
				Help:    "Daily rollup duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
			},
		),

		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsIngestedTotal,
		m.EventsDuplicateTotal,
		m.IngestBatchSize,
		m.AlertsRaisedTotal,
		m.AlertsResolvedTotal,
		m.DetectorFailuresTotal,
		m.AggregationRunsTotal,
		m.AggregationDuration,
		m.StorageErrorsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
