package telemetry

import (
	"context"
	"fmt"
	"time"
)

// Alert types and severities emitted by the detector.
const (
	AlertTypeFailureSpike = "failure_spike"
	AlertTypeLatencySpike = "latency_spike"

	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Detection thresholds.
const (
	failureSpikeMinCalls = 20
	failureSpikeRate     = 0.10
	latencySpikeFactor   = 3
)

// Detector runs the post-ingestion anomaly checks for a skill. It reads
// recent event windows from the store and writes alert rows through it.
type Detector struct {
	store *Store
}

// Anomaly is one triggered check. Raised is true only when the run created
// a new alert row, not when an unresolved alert of the type already existed.
type Anomaly struct {
	AlertType string
	Severity  string
	Message   string
	Raised    bool
}

// NewDetector creates a detector backed by the given store.
func NewDetector(store *Store) *Detector {
	return &Detector{store: store}
}

// CheckFailureSpike reports a message when the skill's trailing-hour failure
// rate exceeds the threshold with enough volume behind it.
func (d *Detector) CheckFailureSpike(ctx context.Context, skillID string) (string, error) {
	oneHourAgo := time.Now().Unix() - 3600

	var total, failures int64
	err := d.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM skill_events WHERE skill_id = ? AND timestamp >= ?`,
		skillID, oneHourAgo).Scan(&total, &failures)
	if err != nil {
		return "", storageErr("failure spike window", err)
	}

	if total > failureSpikeMinCalls {
		rate := float64(failures) / float64(total)
		if rate > failureSpikeRate {
			return fmt.Sprintf("Skill '%s' failure rate is %.1f%% (%d/%d) in the last hour",
				skillID, rate*100.0, failures, total), nil
		}
	}
	return "", nil
}

// CheckLatencySpike reports a message when the skill's trailing-hour p95
// latency is more than latencySpikeFactor times the p95 of the same
// clock-hour window 24 hours earlier. Both windows must have samples.
func (d *Detector) CheckLatencySpike(ctx context.Context, skillID string) (string, error) {
	now := time.Now().Unix()
	oneHourAgo := now - 3600
	yesterdayStart := oneHourAgo - 86400
	yesterdayEnd := now - 86400

	current, err := d.store.skillLatencyPercentile(ctx, skillID, oneHourAgo, now+1, 0.95)
	if err != nil {
		return "", err
	}
	previous, err := d.store.skillLatencyPercentile(ctx, skillID, yesterdayStart, yesterdayEnd, 0.95)
	if err != nil {
		return "", err
	}

	if current != nil && previous != nil && *previous > 0 && *current > *previous*latencySpikeFactor {
		increase := (float64(*current-*previous) / float64(*previous)) * 100.0
		return fmt.Sprintf("Skill '%s' P95 latency spiked from %dms to %dms (%.0f%% increase)",
			skillID, *previous, *current, increase), nil
	}
	return "", nil
}

// RunChecks runs every check for one skill and persists the outcome: a
// triggered check inserts an alert unless an unresolved one of the same
// type exists, and a clear check auto-resolves any open alert of its type.
// Returns the triggered anomalies and the alert types auto-resolved by this
// run.
func (d *Detector) RunChecks(ctx context.Context, skillID string) (anomalies []Anomaly, resolved []string, err error) {
	checks := []struct {
		alertType string
		severity  string
		run       func(context.Context, string) (string, error)
	}{
		{AlertTypeFailureSpike, SeverityCritical, d.CheckFailureSpike},
		{AlertTypeLatencySpike, SeverityWarning, d.CheckLatencySpike},
	}

	for _, c := range checks {
		msg, err := c.run(ctx, skillID)
		if err != nil {
			return anomalies, resolved, err
		}

		if msg == "" {
			cleared, err := d.store.resolveOpenAlert(ctx, skillID, c.alertType)
			if err != nil {
				return anomalies, resolved, err
			}
			if cleared {
				resolved = append(resolved, c.alertType)
			}
			continue
		}

		raised, err := d.store.insertAlertIfAbsent(ctx, skillID, c.alertType, c.severity, msg)
		if err != nil {
			return anomalies, resolved, err
		}
		anomalies = append(anomalies, Anomaly{
			AlertType: c.alertType,
			Severity:  c.severity,
			Message:   msg,
			Raised:    raised,
		})
	}

	return anomalies, resolved, nil
}
