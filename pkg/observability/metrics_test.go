package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.EventsIngestedTotal.Add(5)
	m.EventsDuplicateTotal.Inc()
	m.AlertsRaisedTotal.WithLabelValues("failure_spike", "critical").Inc()
	m.AggregationRunsTotal.WithLabelValues("success").Inc()

	assert.Equal(t, 5.0, testutil.ToFloat64(m.EventsIngestedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDuplicateTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsRaisedTotal.WithLabelValues("failure_spike", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationRunsTotal.WithLabelValues("success")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/v1/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/events", "201")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.EventsIngestedTotal.Add(2)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telemetry_events_ingested_total 2")
}
