package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}
	if bootstrapDone {
		return nil
	}
	if err := s.runBootstrapDDL(); err != nil {
		return err
	}
	if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
		return fmt.Errorf("marking bootstrap complete: %w", err)
	}
	return nil
}

// runBootstrapDDL creates the full schema in one transaction.
func (s *SQLiteStore) runBootstrapDDL() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap transaction: %w", err)
	}
	defer tx.Rollback()

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			started_at   TEXT NOT NULL,
			finished_at  TEXT NOT NULL,
			unit_count   INTEGER NOT NULL DEFAULT 0,
			record_count INTEGER NOT NULL DEFAULT 0,
			degraded     INTEGER NOT NULL DEFAULT 0,
			orphans      INTEGER NOT NULL DEFAULT 0,
			cycles       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_records (
			run_id                 TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			text_unit_id           TEXT NOT NULL,
			thread_id              TEXT NOT NULL,
			source                 TEXT NOT NULL,
			resolved_route_id      TEXT NOT NULL DEFAULT '',
			route_source           TEXT NOT NULL,
			is_transit_related     INTEGER NOT NULL DEFAULT 0,
			is_actionable_feedback INTEGER NOT NULL DEFAULT 0,
			sentiment_score        REAL NOT NULL DEFAULT 0,
			is_sarcastic           INTEGER NOT NULL DEFAULT 0,
			time_bucket            TEXT NOT NULL,
			inherited_time_bucket  TEXT NOT NULL DEFAULT '',
			stop_mentions          TEXT NOT NULL DEFAULT '',
			degraded               INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, text_unit_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_route
			ON feedback_records(resolved_route_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_bucket
			ON feedback_records(time_bucket)`,
		`CREATE INDEX IF NOT EXISTS idx_records_thread
			ON feedback_records(thread_id)`,
	}
	for _, stmt := range ddl {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrap DDL: %w", err)
		}
	}
	return tx.Commit()
}

// isMetaFlagEnabled reports whether a meta flag is set to "1". A missing
// meta table means a fresh database.
func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		if isMissingTable(err) {
			return false, nil
		}
		return false, err
	}
	return value == "1", nil
}

// setMetaFlag sets a meta flag to "1".
func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta(key, value) VALUES(?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = '1'`, key)
	return err
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
