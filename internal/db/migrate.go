package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; Migrate runs it on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS gigs (
		fingerprint    TEXT PRIMARY KEY,
		source         TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		link           TEXT NOT NULL DEFAULT '',
		snippet        TEXT NOT NULL DEFAULT '',
		score          DOUBLE PRECISION NOT NULL DEFAULT 0,
		budget         JSONB,
		classification JSONB,
		first_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS gigs_first_seen_at_idx ON gigs (first_seen_at DESC)`,
	`CREATE INDEX IF NOT EXISTS gigs_source_idx ON gigs (source)`,
	`CREATE TABLE IF NOT EXISTS scraper_health (
		source               TEXT PRIMARY KEY,
		status               TEXT NOT NULL DEFAULT 'HEALTHY',
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		total_successes      BIGINT NOT NULL DEFAULT 0,
		total_failures       BIGINT NOT NULL DEFAULT 0,
		last_success_at      TIMESTAMPTZ,
		last_failure_at      TIMESTAMPTZ,
		last_duration_ms     BIGINT NOT NULL DEFAULT 0,
		last_error           TEXT NOT NULL DEFAULT '',
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the gigs and scraper_health tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
