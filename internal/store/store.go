// Package store provides the SQLite storage layer for pipeline output.
//
// Everything lives in a single database file: pipeline runs with their
// counters, and one feedback record per processed text unit. Records are
// keyed by (run, text unit) so re-running a batch replaces its own rows
// instead of duplicating them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/transitlab/transitpulse/internal/feedback"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.transitpulse/transitpulse.db"

// DefaultBatchSize is the default batch size for bulk inserts.
const DefaultBatchSize = 500

// Run records one pipeline invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	UnitCount   int64
	RecordCount int64
	Degraded    int64
	Orphans     int64
	Cycles      int64
}

// RouteSummary aggregates records per resolved route.
type RouteSummary struct {
	RouteID        string
	RecordCount    int64
	FeedbackCount  int64
	AvgSentiment   float64
	SarcasticCount int64
}

// QueryOpts filters record listings. Zero values mean no filter.
type QueryOpts struct {
	RouteID      string
	TimeBucket   feedback.TimeBucket
	Source       feedback.Source
	OnlyFeedback bool
	Limit        int
	Offset       int
}

// Stats holds observability counters for the whole store.
type Stats struct {
	RunCount    int64
	RecordCount int64
	RouteCount  int64
	DBSizeBytes int64
}

// Config holds configuration for New.
type Config struct {
	DBPath    string
	BatchSize int
}

// Store defines the storage interface the pipeline and query tools use.
type Store interface {
	// Runs
	AddRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Records
	AddRecordBatch(ctx context.Context, runID string, records []feedback.FeedbackRecord) error
	GetRecord(ctx context.Context, runID, unitID string) (*feedback.FeedbackRecord, error)
	QueryRecords(ctx context.Context, opts QueryOpts) ([]*feedback.FeedbackRecord, error)

	// Aggregation
	SummarizeRoutes(ctx context.Context) ([]*RouteSummary, error)

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
}

// New creates a SQLite-backed Store. Pass ":memory:" for tests.
func New(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath, batchSize: cfg.BatchSize}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM. Manual only, never automatic.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
