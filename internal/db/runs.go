package db

import (
	"context"
	"database/sql"
	"time"
)

// CreateSyncRun records the start of a pipeline run
func (db *DB) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	query := `
		INSERT INTO sync_runs (run_id, trigger_source, started_at, completed_at, status, watermark, processed, saved, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, db.rebind(query),
		run.RunID,
		run.Trigger,
		run.StartedAt.UTC(),
		utcPtr(run.CompletedAt),
		run.Status,
		utcPtr(run.Watermark),
		run.Processed,
		run.Saved,
		run.Errors,
	)

	return err
}

// GetSyncRun retrieves a sync run by its run ID
func (db *DB) GetSyncRun(ctx context.Context, runID string) (*SyncRun, error) {
	query := `
		SELECT run_id, trigger_source, started_at, completed_at, status, watermark, processed, saved, errors
		FROM sync_runs
		WHERE run_id = ?
	`

	run, err := scanSyncRun(db.QueryRowContext(ctx, db.rebind(query), runID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// LatestSyncRun returns the most recently started run that has completed
func (db *DB) LatestSyncRun(ctx context.Context) (*SyncRun, error) {
	query := `
		SELECT run_id, trigger_source, started_at, completed_at, status, watermark, processed, saved, errors
		FROM sync_runs
		WHERE completed_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	run, err := scanSyncRun(db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// GetSyncRuns retrieves the most recent runs, newest first
func (db *DB) GetSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	query := `
		SELECT run_id, trigger_source, started_at, completed_at, status, watermark, processed, saved, errors
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, db.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	// Return empty slice instead of nil
	if runs == nil {
		runs = []SyncRun{}
	}

	return runs, nil
}

// CompleteSyncRun stores the final counters and status of a run
func (db *DB) CompleteSyncRun(ctx context.Context, runID string, status string, processed, saved, errors int, completedAt time.Time) error {
	query := `
		UPDATE sync_runs
		SET status = ?, completed_at = ?, processed = ?, saved = ?, errors = ?
		WHERE run_id = ?
	`

	result, err := db.ExecContext(ctx, db.rebind(query), status, completedAt.UTC(), processed, saved, errors, runID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func scanSyncRun(s rowScanner) (*SyncRun, error) {
	run := &SyncRun{}
	err := s.Scan(
		&run.RunID,
		&run.Trigger,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Status,
		&run.Watermark,
		&run.Processed,
		&run.Saved,
		&run.Errors,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = run.StartedAt.UTC()
	run.CompletedAt = utcPtr(run.CompletedAt)
	run.Watermark = utcPtr(run.Watermark)
	return run, nil
}
