// Package telemetry is the embedded analytics engine for Skilldeck: it
// persists skill usage events, serves aggregate queries over them, and
// raises anomaly alerts after each ingest batch.
//
// # Overview
//
// The Store owns a single SQLite database with three tables:
//
//   - skill_events: one immutable row per skill invocation
//   - skill_daily_stats: per-(skill, day) rollups written by the Aggregator
//   - analytics_alerts: anomalies found by the Detector
//
// All access serializes through one physical connection. Batch inserts are
// transactional, so a reader never observes a partially committed batch.
//
// # Usage
//
// Open a store and record a batch:
//
//	store, err := telemetry.Open("/path/to/telemetry.db")
//	accepted, inserted, err := store.InsertEvents(ctx, events)
//
// Query the dashboard KPIs:
//
//	overview, err := store.GetOverview(ctx, 7)
//	top, err := store.GetTopSkills(ctx, 7, 10)
//
// Run anomaly checks after ingesting events for a skill:
//
//	detector := telemetry.NewDetector(store)
//	anomalies, resolved, err := detector.RunChecks(ctx, skillID)
//
// Materialize yesterday's rollups:
//
//	agg := telemetry.NewAggregator(store)
//	err := agg.AggregateDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
//
// The application's own UI command layer calls the Store's query methods
// and AcknowledgeAlert in-process; the HTTP surface in pkg/api is for
// out-of-process skill runtimes on the local machine.
//
// # Percentiles
//
// Latency percentiles use the nearest-rank estimator: the sample at
// 0-indexed offset floor(N*f) in ascending order, never interpolated.
//
// # Alerts
//
// The Detector raises failure_spike (critical) and latency_spike (warning)
// alerts. Only one unresolved alert per (skill, type) can exist; a check
// that comes back clean auto-resolves its open alert.
package telemetry
