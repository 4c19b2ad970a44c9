package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilldeck/telemetry/pkg/observability"
	"github.com/skilldeck/telemetry/pkg/telemetry"
)

// newTestServer spins up a server over a fresh database file.
func newTestServer(t *testing.T) (*Server, *telemetry.Store) {
	t.Helper()
	store, err := telemetry.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewServer(store, logger, nil), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func ingestPayload(n int, skillID string) map[string]interface{} {
	events := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, map[string]interface{}{
			"id":         fmt.Sprintf("%s-evt-%d", skillID, i),
			"event_type": "skill_invoked",
			"skill_id":   skillID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"user_id":    "u1",
			"session_id": "s1",
			"success":    true,
		})
	}
	return map[string]interface{}{"events": events}
}

func TestIngestRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doJSON(t, router, "POST", "/v1/events", ingestPayload(3, "alpha"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["accepted"])

	rec = doJSON(t, router, "GET", "/v1/analytics/overview?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var overview telemetry.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, int64(3), overview.TotalCalls)
	assert.Equal(t, 1.0, overview.SuccessRate)
}

func TestIngestDuplicateIDsStoredOnce(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	payload := ingestPayload(1, "alpha")
	rec := doJSON(t, router, "POST", "/v1/events", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "POST", "/v1/events", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	// Resubmission reports acceptance but the event is stored once.
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["accepted"])

	rec = doJSON(t, router, "GET", "/v1/analytics/overview", nil)
	var overview telemetry.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, int64(1), overview.TotalCalls)
}

func TestIngestGeneratesMissingIDs(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	payload := map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"event_type": "skill_invoked",
				"skill_id":   "alpha",
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
				"user_id":    "u1",
				"session_id": "s1",
				"success":    true,
			},
		},
	}
	rec := doJSON(t, router, "POST", "/v1/events", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var id string
	require.NoError(t, store.DB().QueryRow("SELECT id FROM skill_events").Scan(&id))
	assert.NotEmpty(t, id)
}

func TestIngestBadTimestampFallsBackToNow(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	payload := map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"id":         "ts-evt",
				"event_type": "skill_invoked",
				"skill_id":   "alpha",
				"timestamp":  "definitely-not-a-timestamp",
				"user_id":    "u1",
				"session_id": "s1",
				"success":    true,
			},
		},
	}
	before := time.Now().Unix()
	rec := doJSON(t, router, "POST", "/v1/events", payload)
	after := time.Now().Unix()
	require.Equal(t, http.StatusOK, rec.Code)

	var ts int64
	require.NoError(t, store.DB().QueryRow(
		"SELECT timestamp FROM skill_events WHERE id = 'ts-evt'").Scan(&ts))
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)
}

func TestIngestInvalidJSON(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/v1/events", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "invalid JSON")
}

func TestIngestStructuredFields(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	payload := map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"id":          "full-evt",
				"event_type":  "skill_invoked",
				"skill_id":    "alpha",
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
				"user_id":     "u1",
				"session_id":  "s1",
				"success":     true,
				"duration_ms": 120,
				"cost": map[string]interface{}{
					"token_input":  100,
					"token_output": 200,
					"api_cost_usd": 0.02,
				},
				"caller": map[string]interface{}{
					"agent_id": "planner",
					"tool_key": "run_skill",
				},
				"metadata": map[string]interface{}{"source": "test"},
			},
		},
	}
	rec := doJSON(t, router, "POST", "/v1/events", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var (
		duration, tokIn, tokOut int64
		cost                    float64
		agent, metadata         string
	)
	require.NoError(t, store.DB().QueryRow(`
		SELECT duration_ms, token_input, token_output, api_cost_usd, caller_agent, metadata_json
		FROM skill_events WHERE id = 'full-evt'`).
		Scan(&duration, &tokIn, &tokOut, &cost, &agent, &metadata))

	assert.Equal(t, int64(120), duration)
	assert.Equal(t, int64(100), tokIn)
	assert.Equal(t, int64(200), tokOut)
	assert.InDelta(t, 0.02, cost, 1e-9)
	assert.Equal(t, "planner", agent)
	assert.JSONEq(t, `{"source":"test"}`, metadata)
}

func TestQueryEndpointsReturnEmptyLists(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	for _, path := range []string{
		"/v1/analytics/top_skills",
		"/v1/analytics/daily_trend",
		"/v1/analytics/success_rate",
		"/v1/analytics/cost_summary",
		"/v1/analytics/caller_analysis",
		"/v1/analytics/user_retention",
		"/v1/analytics/alerts",
	} {
		rec := doJSON(t, router, "GET", path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "[]\n", rec.Body.String(), path)
	}
}

func TestTopSkillsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	doJSON(t, router, "POST", "/v1/events", ingestPayload(5, "alpha"))
	doJSON(t, router, "POST", "/v1/events", ingestPayload(2, "beta"))

	rec := doJSON(t, router, "GET", "/v1/analytics/top_skills?days=7&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var top []telemetry.TopSkillEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, "alpha", top[0].SkillID)
	assert.Equal(t, int64(5), top[0].CallCount)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server.Router(), "GET", "/v1/analytics/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not found", resp["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server.Router(), "DELETE", "/v1/events", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAckAlert(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	_, err := store.DB().Exec(`
		INSERT INTO analytics_alerts (id, skill_id, alert_type, severity, message, detected_at)
		VALUES ('alert-1', 'alpha', 'failure_spike', 'critical', 'test alert', ?)`,
		time.Now().Unix())
	require.NoError(t, err)

	rec := doJSON(t, router, "POST", "/v1/analytics/alerts/alert-1/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/analytics/alerts", nil)
	var alerts []telemetry.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)
}

func TestAckUnknownAlertReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server.Router(), "POST", "/v1/analytics/alerts/missing/ack", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
