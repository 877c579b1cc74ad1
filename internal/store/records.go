package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/transitlab/transitpulse/internal/feedback"
)

// AddRecordBatch inserts records for one run in batched transactions.
// Re-inserting the same (run, unit) pair replaces the old row, so a retried
// run converges instead of duplicating.
func (s *SQLiteStore) AddRecordBatch(ctx context.Context, runID string, records []feedback.FeedbackRecord) error {
	if runID == "" {
		return fmt.Errorf("record batch has empty run id")
	}
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.insertRecordChunk(ctx, runID, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) insertRecordChunk(ctx context.Context, runID string, records []feedback.FeedbackRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning record batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feedback_records (
			run_id, text_unit_id, thread_id, source, resolved_route_id, route_source,
			is_transit_related, is_actionable_feedback, sentiment_score, is_sarcastic,
			time_bucket, inherited_time_bucket, stop_mentions, degraded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, text_unit_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			source = excluded.source,
			resolved_route_id = excluded.resolved_route_id,
			route_source = excluded.route_source,
			is_transit_related = excluded.is_transit_related,
			is_actionable_feedback = excluded.is_actionable_feedback,
			sentiment_score = excluded.sentiment_score,
			is_sarcastic = excluded.is_sarcastic,
			time_bucket = excluded.time_bucket,
			inherited_time_bucket = excluded.inherited_time_bucket,
			stop_mentions = excluded.stop_mentions,
			degraded = excluded.degraded`)
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if r.TextUnitID == "" {
			return fmt.Errorf("record with empty text unit id in run %s", runID)
		}
		_, err := stmt.ExecContext(ctx,
			runID, r.TextUnitID, r.ThreadID, string(r.Source), r.ResolvedRouteID, string(r.RouteSource),
			boolInt(r.IsTransitRelated), boolInt(r.IsActionableFeedback), r.SentimentScore, boolInt(r.IsSarcastic),
			string(r.TimeBucket), string(r.InheritedTimeBucket), strings.Join(r.StopMentions, "|"), boolInt(r.Degraded),
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.TextUnitID, err)
		}
	}
	return tx.Commit()
}

// GetRecord returns one record, or nil when absent.
func (s *SQLiteStore) GetRecord(ctx context.Context, runID, unitID string) (*feedback.FeedbackRecord, error) {
	row := s.db.QueryRowContext(ctx, recordSelect+` WHERE run_id = ? AND text_unit_id = ?`, runID, unitID)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s/%s: %w", runID, unitID, err)
	}
	return r, nil
}

// QueryRecords lists records matching the filters, most recently started run
// first then unit id, for stable pagination.
func (s *SQLiteStore) QueryRecords(ctx context.Context, opts QueryOpts) ([]*feedback.FeedbackRecord, error) {
	var conds []string
	var args []any
	if opts.RouteID != "" {
		conds = append(conds, "r.resolved_route_id = ?")
		args = append(args, opts.RouteID)
	}
	if opts.TimeBucket != "" {
		conds = append(conds, "r.time_bucket = ?")
		args = append(args, string(opts.TimeBucket))
	}
	if opts.Source != "" {
		conds = append(conds, "r.source = ?")
		args = append(args, string(opts.Source))
	}
	if opts.OnlyFeedback {
		conds = append(conds, "r.is_actionable_feedback = 1")
	}

	q := recordJoinSelect
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY runs.started_at DESC, r.run_id DESC, r.text_unit_id ASC"
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []*feedback.FeedbackRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SummarizeRoutes aggregates records per resolved route, skipping
// unresolved rows. Sentiment averages only actionable feedback so praise
// threads and complaint threads stay comparable.
func (s *SQLiteStore) SummarizeRoutes(ctx context.Context) ([]*RouteSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resolved_route_id,
			COUNT(*),
			SUM(is_actionable_feedback),
			COALESCE(AVG(CASE WHEN is_actionable_feedback = 1 THEN sentiment_score END), 0),
			SUM(is_sarcastic)
		FROM feedback_records
		WHERE resolved_route_id != ''
		GROUP BY resolved_route_id
		ORDER BY COUNT(*) DESC, resolved_route_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("summarizing routes: %w", err)
	}
	defer rows.Close()

	var out []*RouteSummary
	for rows.Next() {
		var sum RouteSummary
		if err := rows.Scan(&sum.RouteID, &sum.RecordCount, &sum.FeedbackCount, &sum.AvgSentiment, &sum.SarcasticCount); err != nil {
			return nil, fmt.Errorf("scanning route summary: %w", err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

// Stats returns store-wide counters.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&st.RunCount); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback_records`).Scan(&st.RecordCount); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT resolved_route_id) FROM feedback_records WHERE resolved_route_id != ''`,
	).Scan(&st.RouteCount); err != nil {
		return nil, fmt.Errorf("counting routes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
	).Scan(&st.DBSizeBytes); err != nil {
		return nil, fmt.Errorf("reading db size: %w", err)
	}
	return &st, nil
}

const recordSelect = `
	SELECT text_unit_id, thread_id, source, resolved_route_id, route_source,
		is_transit_related, is_actionable_feedback, sentiment_score, is_sarcastic,
		time_bucket, inherited_time_bucket, stop_mentions, degraded
	FROM feedback_records`

const recordJoinSelect = `
	SELECT r.text_unit_id, r.thread_id, r.source, r.resolved_route_id, r.route_source,
		r.is_transit_related, r.is_actionable_feedback, r.sentiment_score, r.is_sarcastic,
		r.time_bucket, r.inherited_time_bucket, r.stop_mentions, r.degraded
	FROM feedback_records r
	JOIN runs ON runs.id = r.run_id`

func scanRecord(row rowScanner) (*feedback.FeedbackRecord, error) {
	var r feedback.FeedbackRecord
	var source, routeSource, bucket, inherited, stops string
	var transit, actionable, sarcastic, degraded int
	err := row.Scan(&r.TextUnitID, &r.ThreadID, &source, &r.ResolvedRouteID, &routeSource,
		&transit, &actionable, &r.SentimentScore, &sarcastic,
		&bucket, &inherited, &stops, &degraded)
	if err != nil {
		return nil, err
	}
	r.Source = feedback.Source(source)
	r.RouteSource = feedback.RouteSource(routeSource)
	r.IsTransitRelated = transit == 1
	r.IsActionableFeedback = actionable == 1
	r.IsSarcastic = sarcastic == 1
	r.TimeBucket = feedback.TimeBucket(bucket)
	r.InheritedTimeBucket = feedback.TimeBucket(inherited)
	r.Degraded = degraded == 1
	if stops != "" {
		r.StopMentions = strings.Split(stops, "|")
	}
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
