package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/skilldeck/telemetry/pkg/async"
	"github.com/skilldeck/telemetry/pkg/httputil"
	"github.com/skilldeck/telemetry/pkg/telemetry"
)

// detectorTimeout bounds the post-ingest anomaly checks so a slow disk
// cannot pile up goroutines behind the ingest path.
const detectorTimeout = 30 * time.Second

// ingestRequest is the wire format of POST /v1/events.
type ingestRequest struct {
	Events []ingestEvent `json:"events"`
}

// ingestEvent is one submitted invocation record. The id is an optional
// idempotency key; resubmitting the same id is a silent no-op.
type ingestEvent struct {
	ID            string           `json:"id"`
	EventType     string           `json:"event_type"`
	SkillID       string           `json:"skill_id"`
	Timestamp     string           `json:"timestamp"`
	UserID        string           `json:"user_id"`
	SessionID     string           `json:"session_id"`
	InputHash     *string          `json:"input_hash"`
	Success       bool             `json:"success"`
	DurationMs    *int64           `json:"duration_ms"`
	Error         *string          `json:"error"`
	FeedbackScore *int             `json:"feedback_score"`
	Cost          *ingestCost      `json:"cost"`
	Caller        *ingestCaller    `json:"caller"`
	Metadata      *json.RawMessage `json:"metadata"`
}

type ingestCost struct {
	TokenInput  *int64   `json:"token_input"`
	TokenOutput *int64   `json:"token_output"`
	APICostUSD  *float64 `json:"api_cost_usd"`
}

type ingestCaller struct {
	AgentID    *string `json:"agent_id"`
	WorkflowID *string `json:"workflow_id"`
	ToolKey    *string `json:"tool_key"`
}

// toEvent converts a wire event to a storage row. A missing or malformed
// timestamp falls back to the receive time rather than rejecting the batch.
func (e *ingestEvent) toEvent(now time.Time) telemetry.Event {
	ts := now.Unix()
	if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		ts = t.Unix()
	}

	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	ev := telemetry.Event{
		ID:            id,
		EventType:     e.EventType,
		SkillID:       e.SkillID,
		Timestamp:     ts,
		UserID:        e.UserID,
		SessionID:     e.SessionID,
		InputHash:     e.InputHash,
		Success:       e.Success,
		DurationMs:    e.DurationMs,
		Error:         e.Error,
		FeedbackScore: e.FeedbackScore,
	}
	if e.Cost != nil {
		ev.TokenInput = e.Cost.TokenInput
		ev.TokenOutput = e.Cost.TokenOutput
		ev.APICostUSD = e.Cost.APICostUSD
	}
	if e.Caller != nil {
		ev.CallerAgent = e.Caller.AgentID
		ev.CallerWorkflow = e.Caller.WorkflowID
		ev.CallerTool = e.Caller.ToolKey
	}
	if e.Metadata != nil {
		m := string(*e.Metadata)
		ev.MetadataJSON = &m
	}
	return ev
}

// handleIngest handles POST /v1/events. On success it responds with the
// number of accepted events and kicks off anomaly checks for each distinct
// skill in the batch.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	now := time.Now()
	events := make([]telemetry.Event, 0, len(req.Events))
	for i := range req.Events {
		events = append(events, req.Events[i].toEvent(now))
	}

	accepted, inserted, err := s.store.InsertEvents(r.Context(), events)
	if err != nil {
		s.logger.WithError(err).Error("Failed to insert events")
		httputil.WriteInternalError(w, "failed to store events")
		return
	}

	s.logger.WithField("count", accepted).Debug("Ingested events")
	if s.metrics != nil {
		s.metrics.EventsIngestedTotal.Add(float64(accepted))
		s.metrics.EventsDuplicateTotal.Add(float64(accepted - inserted))
		s.metrics.IngestBatchSize.Observe(float64(len(events)))
	}

	// Detector runs detached from the request: ingest latency must not
	// depend on the anomaly scans.
	for _, skillID := range distinctSkills(events) {
		skillID := skillID
		async.SafeGo(context.Background(), detectorTimeout, "anomaly detection", func(ctx context.Context) error {
			anomalies, resolved, err := s.detector.RunChecks(ctx, skillID)
			if err != nil {
				if s.metrics != nil {
					s.metrics.DetectorFailuresTotal.Inc()
				}
				return err
			}
			for _, a := range anomalies {
				s.logger.WithField("skill_id", skillID).Warn(a.Message)
				if a.Raised && s.metrics != nil {
					s.metrics.AlertsRaisedTotal.WithLabelValues(a.AlertType, a.Severity).Inc()
				}
			}
			if s.metrics != nil {
				for _, alertType := range resolved {
					s.metrics.AlertsResolvedTotal.WithLabelValues(alertType).Inc()
				}
			}
			return nil
		})
	}

	httputil.WriteSuccess(w, map[string]int{"accepted": accepted})
}

func distinctSkills(events []telemetry.Event) []string {
	seen := make(map[string]struct{}, len(events))
	var skills []string
	for _, e := range events {
		if _, ok := seen[e.SkillID]; ok {
			continue
		}
		seen[e.SkillID] = struct{}{}
		skills = append(skills, e.SkillID)
	}
	return skills
}
