package telemetry

import (
	"context"
	"database/sql"
	"time"
)

// Aggregator collapses raw events into per-day, per-skill rollups. The
// recomputation is pure and idempotent: running it twice for the same date
// against unchanged events produces identical rows, so callers may retry
// blindly on failure.
type Aggregator struct {
	store *Store
}

// NewAggregator creates an aggregator backed by the given store.
func NewAggregator(store *Store) *Aggregator {
	return &Aggregator{store: store}
}

// AggregateDay materializes skill_daily_stats for the given calendar date
// (UTC), one INSERT OR REPLACE per skill with events that day.
func (a *Aggregator) AggregateDay(ctx context.Context, day time.Time) error {
	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	date := dayStart.Format("2006-01-02")
	startTS, endTS := dayStart.Unix(), dayEnd.Unix()

	rows, err := a.store.db.QueryContext(ctx, `
		SELECT DISTINCT skill_id FROM skill_events
		WHERE timestamp >= ? AND timestamp < ?`, startTS, endTS)
	if err != nil {
		return storageErr("aggregate skills", err)
	}
	var skills []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return storageErr("scan aggregate skill", err)
		}
		skills = append(skills, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return storageErr("aggregate skills rows", err)
	}
	rows.Close()

	for _, skillID := range skills {
		if err := a.aggregateSkillDay(ctx, skillID, date, startTS, endTS); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) aggregateSkillDay(ctx context.Context, skillID, date string, startTS, endTS int64) error {
	var (
		totalCalls, successCount, failCount int64
		avgMs                               sql.NullFloat64
		uniqueUsers                         int64
		totalCost                           float64
		thumbsUp, thumbsDown                int64
	)
	err := a.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       AVG(duration_ms),
		       COUNT(DISTINCT user_id),
		       COALESCE(SUM(api_cost_usd), 0),
		       SUM(CASE WHEN feedback_score = 1 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN feedback_score = -1 THEN 1 ELSE 0 END)
		FROM skill_events
		WHERE skill_id = ? AND timestamp >= ? AND timestamp < ?`,
		skillID, startTS, endTS).
		Scan(&totalCalls, &successCount, &failCount, &avgMs,
			&uniqueUsers, &totalCost, &thumbsUp, &thumbsDown)
	if err != nil {
		return storageErr("aggregate day totals", err)
	}

	p50, err := a.store.skillLatencyPercentile(ctx, skillID, startTS, endTS, 0.50)
	if err != nil {
		return err
	}
	p95, err := a.store.skillLatencyPercentile(ctx, skillID, startTS, endTS, 0.95)
	if err != nil {
		return err
	}
	p99, err := a.store.skillLatencyPercentile(ctx, skillID, startTS, endTS, 0.99)
	if err != nil {
		return err
	}

	var avg *float64
	if avgMs.Valid {
		avg = &avgMs.Float64
	}

	_, err = a.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO skill_daily_stats
			(skill_id, date, total_calls, success_count, fail_count,
			 p50_ms, p95_ms, p99_ms, avg_ms, unique_users, total_cost_usd,
			 thumbs_up, thumbs_down)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		skillID, date, totalCalls, successCount, failCount,
		p50, p95, p99, avg, uniqueUsers, totalCost, thumbsUp, thumbsDown)
	return storageErr("upsert daily stats", err)
}
