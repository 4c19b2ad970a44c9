package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the on-disk telemetry database: schema migrations and every
// read/write against the skill_events, skill_daily_stats, and
// analytics_alerts tables. All access serializes through one physical
// connection; a batch insert becomes visible all at once or not at all.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the telemetry database at path and migrates it to
// the current schema version. The database file is exclusively owned by this
// process.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open", err)
	}

	// One connection, serialized access. Writes are fully ordered and a
	// reader can never observe a partially committed batch.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return storageErr("ping", s.db.PingContext(ctx))
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}
