package telemetry

import (
	"context"
	"database/sql"
	"time"
)

// Overview holds the trailing-window KPIs plus deltas against the
// immediately preceding window of equal length. Pointer fields are absent
// when the underlying window has no usable samples.
type Overview struct {
	TotalCalls        int64    `json:"total_calls"`
	SuccessRate       float64  `json:"success_rate"`
	P95LatencyMs      *int64   `json:"p95_latency_ms"`
	ActiveUsers       int64    `json:"active_users"`
	TotalCallsDeltaPct *float64 `json:"total_calls_delta_pct"`
	SuccessRateDelta  float64  `json:"success_rate_delta"`
	P95LatencyDeltaMs *int64   `json:"p95_latency_delta_ms"`
	ActiveUsersDelta  int64    `json:"active_users_delta"`
}

// DailyStat is a per-(skill, calendar day) rollup. Percentile fields are
// absent on cross-skill rows because percentiles do not aggregate
// additively.
type DailyStat struct {
	SkillID      string   `json:"skill_id"`
	Date         string   `json:"date"`
	TotalCalls   int64    `json:"total_calls"`
	SuccessCount int64    `json:"success_count"`
	FailCount    int64    `json:"fail_count"`
	P50Ms        *int64   `json:"p50_ms"`
	P95Ms        *int64   `json:"p95_ms"`
	P99Ms        *int64   `json:"p99_ms"`
	AvgMs        *float64 `json:"avg_ms"`
	UniqueUsers  int64    `json:"unique_users"`
	TotalCostUSD float64  `json:"total_cost_usd"`
	ThumbsUp     int64    `json:"thumbs_up"`
	ThumbsDown   int64    `json:"thumbs_down"`
}

// TopSkillEntry ranks one skill by raw call count over a trailing window.
type TopSkillEntry struct {
	SkillID      string   `json:"skill_id"`
	CallCount    int64    `json:"call_count"`
	SuccessRate  float64  `json:"success_rate"`
	AvgLatencyMs *float64 `json:"avg_latency_ms"`
}

// CostSummaryEntry aggregates spend per skill over a trailing window.
type CostSummaryEntry struct {
	SkillID      string  `json:"skill_id"`
	CallCount    int64   `json:"call_count"`
	SuccessRate  float64 `json:"success_rate"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// CallerDependency is one (caller agent, caller tool, skill) edge with its
// call volume.
type CallerDependency struct {
	CallerAgent string `json:"caller_agent"`
	CallerTool  string `json:"caller_tool"`
	SkillID     string `json:"skill_id"`
	CallCount   int64  `json:"call_count"`
}

// UserRetentionPair reports cohort overlap: of the users who invoked skill
// A, how many also invoked skill B in the same window.
type UserRetentionPair struct {
	SkillA        string  `json:"skill_a"`
	SkillB        string  `json:"skill_b"`
	UsersBoth     int64   `json:"users_both"`
	UsersAOnly    int64   `json:"users_a_only"`
	RetentionRate float64 `json:"retention_rate"`
}

// Nearest-rank percentile: the sample at 0-indexed offset floor(N*f) when
// sorted ascending. Deliberately not interpolated, and not stable under
// duplicate values.
const percentileWindowQuery = `
	SELECT duration_ms FROM skill_events
	WHERE timestamp >= ?1 AND timestamp < ?2 AND duration_ms IS NOT NULL
	ORDER BY duration_ms ASC
	LIMIT 1 OFFSET (SELECT CAST(COUNT(*) * ?3 AS INTEGER)
	                FROM skill_events
	                WHERE timestamp >= ?1 AND timestamp < ?2 AND duration_ms IS NOT NULL)`

const percentileSkillWindowQuery = `
	SELECT duration_ms FROM skill_events
	WHERE skill_id = ?1 AND timestamp >= ?2 AND timestamp < ?3 AND duration_ms IS NOT NULL
	ORDER BY duration_ms ASC
	LIMIT 1 OFFSET (SELECT CAST(COUNT(*) * ?4 AS INTEGER)
	                FROM skill_events
	                WHERE skill_id = ?1 AND timestamp >= ?2 AND timestamp < ?3 AND duration_ms IS NOT NULL)`

// latencyPercentile returns the nearest-rank percentile of duration_ms over
// [since, until), or nil when the window has no duration samples.
func (s *Store) latencyPercentile(ctx context.Context, since, until int64, fraction float64) (*int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, percentileWindowQuery, since, until, fraction).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("latency percentile", err)
	}
	return &v, nil
}

// skillLatencyPercentile is latencyPercentile restricted to one skill.
func (s *Store) skillLatencyPercentile(ctx context.Context, skillID string, since, until int64, fraction float64) (*int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, percentileSkillWindowQuery, skillID, since, until, fraction).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("skill latency percentile", err)
	}
	return &v, nil
}

// GetOverview computes the trailing-window KPIs and their deltas against the
// preceding window of equal length. With no calls in the preceding window
// the call-count delta is absent and the success-rate baseline is 100%.
func (s *Store) GetOverview(ctx context.Context, days int) (*Overview, error) {
	now := time.Now().Unix()
	periodStart := now - int64(days)*86400
	prevStart := periodStart - int64(days)*86400

	const windowTotals = `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT user_id)
		FROM skill_events
		WHERE timestamp >= ?1 AND timestamp < ?2`

	var totalCalls, successCount, activeUsers int64
	err := s.db.QueryRowContext(ctx, windowTotals, periodStart, now+1).
		Scan(&totalCalls, &successCount, &activeUsers)
	if err != nil {
		return nil, storageErr("overview totals", err)
	}

	var prevTotal, prevSuccess, prevUsers int64
	err = s.db.QueryRowContext(ctx, windowTotals, prevStart, periodStart).
		Scan(&prevTotal, &prevSuccess, &prevUsers)
	if err != nil {
		return nil, storageErr("overview previous totals", err)
	}

	p95, err := s.latencyPercentile(ctx, periodStart, now+1, 0.95)
	if err != nil {
		return nil, err
	}
	prevP95, err := s.latencyPercentile(ctx, prevStart, periodStart, 0.95)
	if err != nil {
		return nil, err
	}

	successRate := 1.0
	if totalCalls > 0 {
		successRate = float64(successCount) / float64(totalCalls)
	}
	prevSuccessRate := 1.0
	if prevTotal > 0 {
		prevSuccessRate = float64(prevSuccess) / float64(prevTotal)
	}

	o := &Overview{
		TotalCalls:       totalCalls,
		SuccessRate:      successRate,
		P95LatencyMs:     p95,
		ActiveUsers:      activeUsers,
		SuccessRateDelta: successRate - prevSuccessRate,
		ActiveUsersDelta: activeUsers - prevUsers,
	}
	if prevTotal > 0 {
		pct := (float64(totalCalls-prevTotal) / float64(prevTotal)) * 100.0
		o.TotalCallsDeltaPct = &pct
	}
	if p95 != nil && prevP95 != nil {
		delta := *p95 - *prevP95
		o.P95LatencyDeltaMs = &delta
	}
	return o, nil
}

// GetDailyTrend returns cross-skill daily rollups for the trailing window.
// Days that have not been aggregated yet are simply absent; the trend never
// recomputes from raw events.
func (s *Store) GetDailyTrend(ctx context.Context, days int) ([]DailyStat, error) {
	since := time.Now().Unix() - int64(days)*86400

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, SUM(total_calls), SUM(success_count), SUM(fail_count),
		       AVG(avg_ms), SUM(unique_users), COALESCE(SUM(total_cost_usd), 0),
		       COALESCE(SUM(thumbs_up), 0), COALESCE(SUM(thumbs_down), 0)
		FROM skill_daily_stats
		WHERE date >= date(?, 'unixepoch')
		GROUP BY date ORDER BY date ASC`, since)
	if err != nil {
		return nil, storageErr("daily trend", err)
	}
	defer rows.Close()

	var trend []DailyStat
	for rows.Next() {
		st := DailyStat{SkillID: "all"}
		var avg sql.NullFloat64
		if err := rows.Scan(&st.Date, &st.TotalCalls, &st.SuccessCount, &st.FailCount,
			&avg, &st.UniqueUsers, &st.TotalCostUSD, &st.ThumbsUp, &st.ThumbsDown); err != nil {
			return nil, storageErr("scan daily trend", err)
		}
		if avg.Valid {
			st.AvgMs = &avg.Float64
		}
		trend = append(trend, st)
	}
	return trend, storageErr("daily trend rows", rows.Err())
}

// GetTopSkills ranks skills by raw call count descending over the trailing
// window. Ties break by storage order.
func (s *Store) GetTopSkills(ctx context.Context, days, limit int) ([]TopSkillEntry, error) {
	since := time.Now().Unix() - int64(days)*86400

	rows, err := s.db.QueryContext(ctx, `
		SELECT skill_id, COUNT(*) AS cnt,
		       SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) * 1.0 / COUNT(*),
		       AVG(duration_ms)
		FROM skill_events
		WHERE timestamp >= ?
		GROUP BY skill_id ORDER BY cnt DESC LIMIT ?`, since, limit)
	if err != nil {
		return nil, storageErr("top skills", err)
	}
	defer rows.Close()

	var top []TopSkillEntry
	for rows.Next() {
		var e TopSkillEntry
		var avg sql.NullFloat64
		if err := rows.Scan(&e.SkillID, &e.CallCount, &e.SuccessRate, &avg); err != nil {
			return nil, storageErr("scan top skills", err)
		}
		if avg.Valid {
			e.AvgLatencyMs = &avg.Float64
		}
		top = append(top, e)
	}
	return top, storageErr("top skills rows", rows.Err())
}

// GetSuccessRateTrend returns per-day stats for one skill (percentiles
// included) or, with an empty skillID, the cross-skill sum per day with
// percentile fields absent.
func (s *Store) GetSuccessRateTrend(ctx context.Context, skillID string, days int) ([]DailyStat, error) {
	since := time.Now().Unix() - int64(days)*86400

	if skillID != "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT date, total_calls, success_count, fail_count,
			       p50_ms, p95_ms, p99_ms, avg_ms, unique_users,
			       COALESCE(total_cost_usd, 0), COALESCE(thumbs_up, 0), COALESCE(thumbs_down, 0)
			FROM skill_daily_stats
			WHERE skill_id = ? AND date >= date(?, 'unixepoch')
			ORDER BY date ASC`, skillID, since)
		if err != nil {
			return nil, storageErr("success rate trend", err)
		}
		defer rows.Close()

		var trend []DailyStat
		for rows.Next() {
			st := DailyStat{SkillID: skillID}
			var p50, p95, p99 sql.NullInt64
			var avg sql.NullFloat64
			if err := rows.Scan(&st.Date, &st.TotalCalls, &st.SuccessCount, &st.FailCount,
				&p50, &p95, &p99, &avg, &st.UniqueUsers,
				&st.TotalCostUSD, &st.ThumbsUp, &st.ThumbsDown); err != nil {
				return nil, storageErr("scan success rate trend", err)
			}
			if p50.Valid {
				st.P50Ms = &p50.Int64
			}
			if p95.Valid {
				st.P95Ms = &p95.Int64
			}
			if p99.Valid {
				st.P99Ms = &p99.Int64
			}
			if avg.Valid {
				st.AvgMs = &avg.Float64
			}
			trend = append(trend, st)
		}
		return trend, storageErr("success rate trend rows", rows.Err())
	}

	return s.GetDailyTrend(ctx, days)
}

// GetCostSummary aggregates spend per skill over the trailing window,
// ordered by total cost descending. Reads the daily rollups, so
// not-yet-aggregated days do not contribute.
func (s *Store) GetCostSummary(ctx context.Context, days int) ([]CostSummaryEntry, error) {
	since := time.Now().Unix() - int64(days)*86400

	rows, err := s.db.QueryContext(ctx, `
		SELECT skill_id, SUM(total_calls),
		       SUM(success_count) * 1.0 / NULLIF(SUM(total_calls), 0),
		       COALESCE(SUM(total_cost_usd), 0)
		FROM skill_daily_stats
		WHERE date >= date(?, 'unixepoch')
		GROUP BY skill_id ORDER BY SUM(total_cost_usd) DESC`, since)
	if err != nil {
		return nil, storageErr("cost summary", err)
	}
	defer rows.Close()

	var summary []CostSummaryEntry
	for rows.Next() {
		var e CostSummaryEntry
		var rate sql.NullFloat64
		if err := rows.Scan(&e.SkillID, &e.CallCount, &rate, &e.TotalCostUSD); err != nil {
			return nil, storageErr("scan cost summary", err)
		}
		e.SuccessRate = 1.0
		if rate.Valid {
			e.SuccessRate = rate.Float64
		}
		summary = append(summary, e)
	}
	return summary, storageErr("cost summary rows", rows.Err())
}

// GetCallerAnalysis breaks call volume down by (caller agent, caller tool,
// skill) for events that carry caller attribution.
func (s *Store) GetCallerAnalysis(ctx context.Context, days int) ([]CallerDependency, error) {
	since := time.Now().Unix() - int64(days)*86400

	rows, err := s.db.QueryContext(ctx, `
		SELECT caller_agent, COALESCE(caller_tool, ''), skill_id, COUNT(*) AS cnt
		FROM skill_events
		WHERE timestamp >= ? AND caller_agent IS NOT NULL
		GROUP BY caller_agent, caller_tool, skill_id
		ORDER BY cnt DESC`, since)
	if err != nil {
		return nil, storageErr("caller analysis", err)
	}
	defer rows.Close()

	var deps []CallerDependency
	for rows.Next() {
		var d CallerDependency
		if err := rows.Scan(&d.CallerAgent, &d.CallerTool, &d.SkillID, &d.CallCount); err != nil {
			return nil, storageErr("scan caller analysis", err)
		}
		deps = append(deps, d)
	}
	return deps, storageErr("caller analysis rows", rows.Err())
}

// GetUserRetention computes cohort overlap between skill pairs: for each
// pair (A, B) with A < B, the distinct users who invoked both within the
// window, plus the A-only remainder and the both/A ratio.
func (s *Store) GetUserRetention(ctx context.Context, days int) ([]UserRetentionPair, error) {
	since := time.Now().Unix() - int64(days)*86400

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.skill_id, b.skill_id, COUNT(DISTINCT a.user_id) AS both_users
		FROM (SELECT DISTINCT skill_id, user_id FROM skill_events WHERE timestamp >= ?1) a
		JOIN (SELECT DISTINCT skill_id, user_id FROM skill_events WHERE timestamp >= ?1) b
		  ON a.user_id = b.user_id AND a.skill_id < b.skill_id
		GROUP BY a.skill_id, b.skill_id
		ORDER BY both_users DESC
		LIMIT 20`, since)
	if err != nil {
		return nil, storageErr("user retention", err)
	}
	defer rows.Close()

	var pairs []UserRetentionPair
	for rows.Next() {
		var p UserRetentionPair
		if err := rows.Scan(&p.SkillA, &p.SkillB, &p.UsersBoth); err != nil {
			return nil, storageErr("scan user retention", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("user retention rows", err)
	}

	for i := range pairs {
		var usersA int64
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT user_id) FROM skill_events
			WHERE skill_id = ? AND timestamp >= ?`, pairs[i].SkillA, since).Scan(&usersA)
		if err != nil {
			return nil, storageErr("user retention cohort size", err)
		}
		pairs[i].UsersAOnly = usersA - pairs[i].UsersBoth
		if usersA > 0 {
			pairs[i].RetentionRate = float64(pairs[i].UsersBoth) / float64(usersA)
		}
	}
	return pairs, nil
}
