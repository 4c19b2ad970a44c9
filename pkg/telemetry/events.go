package telemetry

import (
	"context"
)

// Event is one immutable record of a skill invocation. The id is a
// caller-supplied idempotency key; once inserted an event is never mutated
// or deleted by this subsystem.
type Event struct {
	ID             string   `json:"id"`
	EventType      string   `json:"event_type"`
	SkillID        string   `json:"skill_id"`
	Timestamp      int64    `json:"timestamp"`
	UserID         string   `json:"user_id"`
	SessionID      string   `json:"session_id"`
	InputHash      *string  `json:"input_hash,omitempty"`
	Success        bool     `json:"success"`
	DurationMs     *int64   `json:"duration_ms,omitempty"`
	Error          *string  `json:"error,omitempty"`
	FeedbackScore  *int     `json:"feedback_score,omitempty"`
	TokenInput     *int64   `json:"token_input,omitempty"`
	TokenOutput    *int64   `json:"token_output,omitempty"`
	APICostUSD     *float64 `json:"api_cost_usd,omitempty"`
	CallerAgent    *string  `json:"caller_agent,omitempty"`
	CallerWorkflow *string  `json:"caller_workflow,omitempty"`
	CallerTool     *string  `json:"caller_tool,omitempty"`
	MetadataJSON   *string  `json:"metadata,omitempty"`
}

// InsertEvents writes a batch of events inside one transaction. Rows whose
// id already exists are silently skipped, giving callers at-least-once
// submission semantics. accepted is the number of rows processed, duplicates
// included; inserted is the number of rows newly added.
func (s *Store) InsertEvents(ctx context.Context, events []Event) (accepted, inserted int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, storageErr("begin insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO skill_events
			(id, event_type, skill_id, timestamp, user_id, session_id,
			 input_hash, success, duration_ms, error, feedback_score,
			 token_input, token_output, api_cost_usd,
			 caller_agent, caller_workflow, caller_tool, metadata_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		return 0, 0, storageErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, e := range events {
		res, err := stmt.ExecContext(ctx,
			e.ID, e.EventType, e.SkillID, e.Timestamp, e.UserID, e.SessionID,
			e.InputHash, e.Success, e.DurationMs, e.Error, e.FeedbackScore,
			e.TokenInput, e.TokenOutput, e.APICostUSD,
			e.CallerAgent, e.CallerWorkflow, e.CallerTool, e.MetadataJSON,
		)
		if err != nil {
			return 0, 0, storageErr("insert event", err)
		}
		accepted++
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, storageErr("commit insert", err)
	}
	return accepted, inserted, nil
}
