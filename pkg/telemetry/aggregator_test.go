package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readDailyStat fetches one rollup row directly.
func readDailyStat(t *testing.T, store *Store, skillID, date string) DailyStat {
	t.Helper()
	st := DailyStat{SkillID: skillID, Date: date}
	err := store.db.QueryRow(`
		SELECT total_calls, success_count, fail_count, p50_ms, p95_ms, p99_ms,
		       avg_ms, unique_users, total_cost_usd, thumbs_up, thumbs_down
		FROM skill_daily_stats WHERE skill_id = ? AND date = ?`, skillID, date).
		Scan(&st.TotalCalls, &st.SuccessCount, &st.FailCount, &st.P50Ms, &st.P95Ms,
			&st.P99Ms, &st.AvgMs, &st.UniqueUsers, &st.TotalCostUSD, &st.ThumbsUp, &st.ThumbsDown)
	require.NoError(t, err)
	return st
}

func TestAggregateDayComputesRollup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	noon := day.Add(12 * time.Hour).Unix()

	cost := 0.5
	up, down := 1, -1
	var events []Event
	for i := 1; i <= 10; i++ {
		e := eventAt(fmt.Sprintf("e%d", i), "alpha", fmt.Sprintf("u%d", i%2), noon+int64(i))
		d := int64(i * 10)
		e.DurationMs = &d
		e.APICostUSD = &cost
		e.Success = i <= 8
		switch i {
		case 1, 2:
			e.FeedbackScore = &up
		case 3:
			e.FeedbackScore = &down
		}
		events = append(events, e)
	}
	insertAll(t, store, events)

	require.NoError(t, NewAggregator(store).AggregateDay(ctx, day))

	st := readDailyStat(t, store, "alpha", "2026-08-20")
	assert.Equal(t, int64(10), st.TotalCalls)
	assert.Equal(t, int64(8), st.SuccessCount)
	assert.Equal(t, int64(2), st.FailCount)
	assert.Equal(t, int64(2), st.UniqueUsers)
	assert.InDelta(t, 5.0, st.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(2), st.ThumbsUp)
	assert.Equal(t, int64(1), st.ThumbsDown)

	// Nearest-rank over 10,20,...,100.
	require.NotNil(t, st.P50Ms)
	assert.Equal(t, int64(60), *st.P50Ms)
	require.NotNil(t, st.P95Ms)
	assert.Equal(t, int64(100), *st.P95Ms)
	require.NotNil(t, st.P99Ms)
	assert.Equal(t, int64(100), *st.P99Ms)
	require.NotNil(t, st.AvgMs)
	assert.InDelta(t, 55.0, *st.AvgMs, 1e-9)
}

func TestAggregateDayIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	insertAll(t, store, []Event{eventAt("e1", "alpha", "u1", day.Add(time.Hour).Unix())})

	agg := NewAggregator(store)
	require.NoError(t, agg.AggregateDay(ctx, day))
	first := readDailyStat(t, store, "alpha", "2026-08-20")

	require.NoError(t, agg.AggregateDay(ctx, day))
	second := readDailyStat(t, store, "alpha", "2026-08-20")

	assert.Equal(t, first, second)

	var rows int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM skill_daily_stats").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestAggregateDayScopesToCalendarDate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	insertAll(t, store, []Event{
		// In: midnight inclusive through the day's last second.
		eventAt("in-1", "alpha", "u1", day.Unix()),
		eventAt("in-2", "alpha", "u1", day.AddDate(0, 0, 1).Unix()-1),
		// Out: one second before midnight, and the next day's midnight.
		eventAt("out-1", "alpha", "u1", day.Unix()-1),
		eventAt("out-2", "alpha", "u1", day.AddDate(0, 0, 1).Unix()),
	})

	require.NoError(t, NewAggregator(store).AggregateDay(ctx, day))

	st := readDailyStat(t, store, "alpha", "2026-08-20")
	assert.Equal(t, int64(2), st.TotalCalls)
}

func TestAggregateDayPerSkillRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	noon := day.Add(12 * time.Hour).Unix()
	insertAll(t, store, []Event{
		eventAt("a1", "alpha", "u1", noon),
		eventAt("a2", "alpha", "u2", noon+1),
		eventAt("b1", "beta", "u1", noon+2),
	})

	require.NoError(t, NewAggregator(store).AggregateDay(ctx, day))

	alpha := readDailyStat(t, store, "alpha", "2026-08-20")
	beta := readDailyStat(t, store, "beta", "2026-08-20")
	assert.Equal(t, int64(2), alpha.TotalCalls)
	assert.Equal(t, int64(1), beta.TotalCalls)
}

func TestAggregateDayNoEventsIsNoOp(t *testing.T) {
	store := openTestStore(t)

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, NewAggregator(store).AggregateDay(context.Background(), day))

	var rows int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM skill_daily_stats").Scan(&rows))
	assert.Equal(t, 0, rows)
}
