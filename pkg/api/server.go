package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skilldeck/telemetry/pkg/httputil"
	"github.com/skilldeck/telemetry/pkg/observability"
	"github.com/skilldeck/telemetry/pkg/telemetry"
)

// Server wires the ingest and query endpoints to the event store. It holds
// no request state of its own; all persistence goes through the store.
type Server struct {
	store    *telemetry.Store
	detector *telemetry.Detector
	logger   *observability.Logger
	metrics  *observability.Metrics
	router   *mux.Router
}

// NewServer creates an API server and registers its routes. metrics may be
// nil when the Prometheus endpoint is disabled.
func NewServer(store *telemetry.Store, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		store:    store,
		detector: telemetry.NewDetector(store),
		logger:   logger,
		metrics:  metrics,
		router:   mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router

	r.Use(httputil.RecoveryMiddleware)
	r.Use(httputil.LoggingMiddleware)
	if s.metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	// Ingestion
	r.HandleFunc("/v1/events", s.handleIngest).Methods("POST")

	// Analytics queries
	r.HandleFunc("/v1/analytics/overview", s.getOverview).Methods("GET")
	r.HandleFunc("/v1/analytics/top_skills", s.getTopSkills).Methods("GET")
	r.HandleFunc("/v1/analytics/daily_trend", s.getDailyTrend).Methods("GET")
	r.HandleFunc("/v1/analytics/success_rate", s.getSuccessRateTrend).Methods("GET")
	r.HandleFunc("/v1/analytics/cost_summary", s.getCostSummary).Methods("GET")
	r.HandleFunc("/v1/analytics/caller_analysis", s.getCallerAnalysis).Methods("GET")
	r.HandleFunc("/v1/analytics/user_retention", s.getUserRetention).Methods("GET")

	// Alerts
	r.HandleFunc("/v1/analytics/alerts", s.getAlerts).Methods("GET")
	r.HandleFunc("/v1/analytics/alerts/{id}/ack", s.ackAlert).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}
