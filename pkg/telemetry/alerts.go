package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Alert is a detected anomaly for one skill. At most one unresolved alert
// per (skill_id, alert_type) exists at a time.
type Alert struct {
	ID           string `json:"id"`
	SkillID      string `json:"skill_id"`
	AlertType    string `json:"alert_type"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	DetectedAt   int64  `json:"detected_at"`
	ResolvedAt   *int64 `json:"resolved_at"`
	Acknowledged bool   `json:"acknowledged"`
}

// GetActiveAlerts returns all unresolved alerts, newest first.
func (s *Store) GetActiveAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_id, alert_type, severity, message,
		       detected_at, resolved_at, acknowledged
		FROM analytics_alerts
		WHERE resolved_at IS NULL
		ORDER BY detected_at DESC`)
	if err != nil {
		return nil, storageErr("active alerts", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.SkillID, &a.AlertType, &a.Severity,
			&a.Message, &a.DetectedAt, &a.ResolvedAt, &a.Acknowledged); err != nil {
			return nil, storageErr("scan alert", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, storageErr("active alerts rows", rows.Err())
}

// AcknowledgeAlert marks an alert as seen by the user. Acknowledging does
// not resolve it. Returns false when no alert has the given id.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE analytics_alerts SET acknowledged = 1 WHERE id = ?", alertID)
	if err != nil {
		return false, storageErr("acknowledge alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("acknowledge alert", err)
	}
	return n > 0, nil
}

// insertAlertIfAbsent records a new alert unless an unresolved alert of the
// same type already exists for the skill; the partial unique index turns a
// concurrent duplicate into a silent no-op. Returns true when a row was
// actually inserted.
func (s *Store) insertAlertIfAbsent(ctx context.Context, skillID, alertType, severity, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO analytics_alerts
			(id, skill_id, alert_type, severity, message, detected_at)
		VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), skillID, alertType, severity, message, time.Now().Unix())
	if err != nil {
		return false, storageErr("insert alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("insert alert", err)
	}
	return n > 0, nil
}

// resolveOpenAlert stamps resolved_at on the unresolved alert of the given
// type for the skill, if one exists. Returns true when an alert was resolved.
func (s *Store) resolveOpenAlert(ctx context.Context, skillID, alertType string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analytics_alerts SET resolved_at = ?
		WHERE skill_id = ? AND alert_type = ? AND resolved_at IS NULL`,
		time.Now().Unix(), skillID, alertType)
	if err != nil {
		return false, storageErr("resolve alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("resolve alert", err)
	}
	return n > 0, nil
}
