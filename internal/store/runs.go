package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddRun inserts or replaces one pipeline run row.
func (s *SQLiteStore) AddRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		return fmt.Errorf("run has empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, unit_count, record_count, degraded, orphans, cycles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			unit_count = excluded.unit_count,
			record_count = excluded.record_count,
			degraded = excluded.degraded,
			orphans = excluded.orphans,
			cycles = excluded.cycles`,
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.UnitCount, r.RecordCount, r.Degraded, r.Orphans, r.Cycles,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun returns one run, or nil when it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, unit_count, record_count, degraded, orphans, cycles
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, unit_count, record_count, degraded, orphans, cycles
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var started, finished string
	if err := row.Scan(&r.ID, &started, &finished, &r.UnitCount, &r.RecordCount, &r.Degraded, &r.Orphans, &r.Cycles); err != nil {
		return nil, err
	}
	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	return &r, nil
}
