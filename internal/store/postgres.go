package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigbot/discovery-service/internal/health"
	"gigbot/discovery-service/internal/model"
)

// PostgresStore persists gigs and health records in the gigs and scraper_health
// tables created by db.Migrate.
type PostgresStore struct {
	pool       *pgxpool.Pool
	thresholds health.Thresholds
	writeMu    sync.Mutex
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool, t health.Thresholds) *PostgresStore {
	return &PostgresStore{pool: pool, thresholds: t}
}

func (s *PostgresStore) TryInsert(ctx context.Context, gig model.Gig) (InsertOutcome, error) {
	budget, err := jsonOrNil(gig.Budget)
	if err != nil {
		return 0, fmt.Errorf("marshal budget: %w", err)
	}
	classification, err := jsonOrNil(gig.Classification)
	if err != nil {
		return 0, fmt.Errorf("marshal classification: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO gigs (fingerprint, source, title, link, snippet, score, budget, classification, first_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		gig.Fingerprint, gig.Source, gig.Title, gig.Link, gig.Snippet, gig.Score,
		budget, classification, gig.FirstSeenAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert gig: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, source string, out model.RunOutcome) (model.HealthRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, err := s.Health(ctx, source)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.HealthRecord{}, err
	}
	rec.Source = source
	rec = health.Apply(rec, out, s.thresholds)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scraper_health (source, status, consecutive_failures, total_successes, total_failures,
		                             last_success_at, last_failure_at, last_duration_ms, last_error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (source) DO UPDATE SET
		   status               = EXCLUDED.status,
		   consecutive_failures = EXCLUDED.consecutive_failures,
		   total_successes      = EXCLUDED.total_successes,
		   total_failures       = EXCLUDED.total_failures,
		   last_success_at      = EXCLUDED.last_success_at,
		   last_failure_at      = EXCLUDED.last_failure_at,
		   last_duration_ms     = EXCLUDED.last_duration_ms,
		   last_error           = EXCLUDED.last_error,
		   updated_at           = NOW()`,
		rec.Source, string(rec.Status), rec.ConsecutiveFailures, rec.TotalSuccesses, rec.TotalFailures,
		rec.LastSuccessAt, rec.LastFailureAt, rec.LastDuration.Milliseconds(), rec.LastError,
	)
	if err != nil {
		return model.HealthRecord{}, fmt.Errorf("upsert scraper_health: %w", err)
	}
	return rec, nil
}

const healthColumns = `source, status, consecutive_failures, total_successes, total_failures,
	last_success_at, last_failure_at, last_duration_ms, last_error`

func (s *PostgresStore) Health(ctx context.Context, source string) (model.HealthRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+healthColumns+` FROM scraper_health WHERE source = $1`, source)
	rec, err := scanHealth(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.HealthRecord{}, ErrNotFound
	}
	if err != nil {
		return model.HealthRecord{}, fmt.Errorf("health %s: %w", source, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListHealth(ctx context.Context) ([]model.HealthRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+healthColumns+` FROM scraper_health ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("listHealth query: %w", err)
	}
	defer rows.Close()

	out := make([]model.HealthRecord, 0)
	for rows.Next() {
		rec, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("listHealth scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentGigs(ctx context.Context, limit int) ([]model.Gig, error) {
	const q = `SELECT fingerprint, source, title, link, snippet, score, budget, classification, first_seen_at
		FROM gigs ORDER BY first_seen_at DESC, fingerprint`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, q+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("recentGigs query: %w", err)
	}
	defer rows.Close()

	gigs := make([]model.Gig, 0)
	for rows.Next() {
		var (
			g                      model.Gig
			budget, classification []byte
		)
		if err := rows.Scan(
			&g.Fingerprint, &g.Source, &g.Title, &g.Link, &g.Snippet, &g.Score,
			&budget, &classification, &g.FirstSeenAt,
		); err != nil {
			return nil, fmt.Errorf("recentGigs scan: %w", err)
		}
		if budget != nil {
			g.Budget = new(model.Budget)
			if err := json.Unmarshal(budget, g.Budget); err != nil {
				return nil, fmt.Errorf("decode budget: %w", err)
			}
		}
		if classification != nil {
			g.Classification = new(model.Classification)
			if err := json.Unmarshal(classification, g.Classification); err != nil {
				return nil, fmt.Errorf("decode classification: %w", err)
			}
		}
		gigs = append(gigs, g)
	}
	return gigs, rows.Err()
}

func scanHealth(row pgx.Row) (model.HealthRecord, error) {
	var (
		rec        model.HealthRecord
		status     string
		durationMS int64
	)
	err := row.Scan(
		&rec.Source, &status, &rec.ConsecutiveFailures, &rec.TotalSuccesses, &rec.TotalFailures,
		&rec.LastSuccessAt, &rec.LastFailureAt, &durationMS, &rec.LastError,
	)
	if err != nil {
		return model.HealthRecord{}, err
	}
	rec.Status = model.HealthStatus(status)
	rec.LastDuration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

// jsonOrNil marshals v, mapping a nil pointer to SQL NULL.
func jsonOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
