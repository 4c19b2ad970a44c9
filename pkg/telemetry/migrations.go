package telemetry

import (
	"context"
	"fmt"
)

// A migration moves the schema from version-1 to version. Each step is
// idempotent, so a crash between the DDL and the version bump is repaired on
// the next open.
type migration struct {
	version int
	apply   func(ctx context.Context, s *Store) error
}

var migrations = []migration{
	{version: 1, apply: migrateEventsTable},
	{version: 2, apply: migrateDailyStatsTable},
	{version: 3, apply: migrateAlertsTable},
}

// migrate inspects the stored schema version and applies exactly the next
// pending migration, one version at a time, until the schema is current. A
// stored version newer than this build understands is fatal.
func (s *Store) migrate(ctx context.Context) error {
	latest := migrations[len(migrations)-1].version

	for {
		var current int
		if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
			return storageErr("read schema version", err)
		}
		if current > latest {
			return &UnsupportedSchemaVersionError{Found: current, Supported: latest}
		}
		if current == latest {
			return nil
		}

		next := migrations[current]
		if err := next.apply(ctx, s); err != nil {
			return storageErr(fmt.Sprintf("migrate to version %d", next.version), err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", next.version)); err != nil {
			return storageErr("bump schema version", err)
		}
	}
}

func migrateEventsTable(ctx context.Context, s *Store) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS skill_events (
			id              TEXT PRIMARY KEY,
			event_type      TEXT NOT NULL,
			skill_id        TEXT NOT NULL,
			timestamp       INTEGER NOT NULL,
			user_id         TEXT NOT NULL,
			session_id      TEXT NOT NULL,
			input_hash      TEXT,
			success         INTEGER NOT NULL DEFAULT 1,
			duration_ms     INTEGER,
			error           TEXT,
			feedback_score  INTEGER,
			token_input     INTEGER,
			token_output    INTEGER,
			api_cost_usd    REAL,
			caller_agent    TEXT,
			caller_workflow TEXT,
			caller_tool     TEXT,
			metadata_json   TEXT,
			created_at      INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		);

		CREATE INDEX IF NOT EXISTS idx_events_skill_ts ON skill_events(skill_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_user ON skill_events(user_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_session ON skill_events(session_id);
	`)
	return err
}

func migrateDailyStatsTable(ctx context.Context, s *Store) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS skill_daily_stats (
			skill_id       TEXT NOT NULL,
			date           TEXT NOT NULL,
			total_calls    INTEGER NOT NULL DEFAULT 0,
			success_count  INTEGER NOT NULL DEFAULT 0,
			fail_count     INTEGER NOT NULL DEFAULT 0,
			p50_ms         INTEGER,
			p95_ms         INTEGER,
			p99_ms         INTEGER,
			avg_ms         REAL,
			unique_users   INTEGER NOT NULL DEFAULT 0,
			total_cost_usd REAL DEFAULT 0,
			thumbs_up      INTEGER DEFAULT 0,
			thumbs_down    INTEGER DEFAULT 0,
			PRIMARY KEY (skill_id, date)
		);
	`)
	return err
}

func migrateAlertsTable(ctx context.Context, s *Store) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_alerts (
			id           TEXT PRIMARY KEY,
			skill_id     TEXT NOT NULL,
			alert_type   TEXT NOT NULL,
			severity     TEXT NOT NULL,
			message      TEXT NOT NULL,
			detected_at  INTEGER NOT NULL,
			resolved_at  INTEGER,
			acknowledged INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_skill ON analytics_alerts(skill_id, detected_at);

		-- At most one unresolved alert per (skill, type). Makes the
		-- detector's check-then-insert atomic at the storage layer.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open
			ON analytics_alerts(skill_id, alert_type)
			WHERE resolved_at IS NULL;
	`)
	return err
}
