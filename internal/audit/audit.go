// Package audit keeps a postgres history of index rebuild attempts.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/postgres"
)

// Entry is one rebuild attempt.
type Entry struct {
	Generation string
	Success    bool
	Error      string
	Posts      int
	Duration   time.Duration
	At         time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_rebuilds (
		id          BIGSERIAL PRIMARY KEY,
		generation  TEXT,
		success     BOOLEAN NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		posts       INTEGER NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL,
		at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS index_rebuilds_at_idx ON index_rebuilds (at DESC)`,
}

// Store reads and writes the rebuild history table.
type Store struct {
	db *postgres.Client
}

// NewStore returns a Store backed by db. Call Migrate before use.
func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, schema...); err != nil {
		return fmt.Errorf("migrating audit schema: %w", err)
	}
	return nil
}

// Record appends one rebuild attempt.
func (s *Store) Record(ctx context.Context, e Entry) error {
	var generation sql.NullString
	if e.Generation != "" {
		generation = sql.NullString{String: e.Generation, Valid: true}
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO index_rebuilds (generation, success, error, posts, duration_ms, at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		generation, e.Success, e.Error, e.Posts, e.Duration.Milliseconds(), e.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording rebuild: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT generation, success, error, posts, duration_ms, at
		 FROM index_rebuilds ORDER BY at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying rebuild history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			generation sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&generation, &e.Success, &e.Error, &e.Posts, &durationMS, &e.At); err != nil {
			return nil, fmt.Errorf("scanning rebuild row: %w", err)
		}
		e.Generation = generation.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
