package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateRun records a new run in the running state.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID, requirement string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, requirement, status)
		VALUES (?, ?, ?)
	`, runID, requirement, RunRunning)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the final status, feedback, and output size of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, feedback string, fileCount int, duration time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, feedback = ?, file_count = ?, duration_ms = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, feedback, fileCount, duration.Milliseconds(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	var durationMs int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, requirement, status, feedback, file_count, duration_ms, created_at, updated_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.Requirement, &run.Status, &run.Feedback, &run.FileCount, &durationMs, &run.CreatedAt, &run.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.Duration = time.Duration(durationMs) * time.Millisecond

	return run, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means
// no limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	// rowid breaks ties between runs created within the same second
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requirement, status, feedback, file_count, duration_ms, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var durationMs int64

		err := rows.Scan(&run.ID, &run.Requirement, &run.Status, &run.Feedback, &run.FileCount, &durationMs, &run.CreatedAt, &run.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveAttempt appends one build attempt to a run's repair history.
// Attempts are append-only (no upsert needed).
func (s *SQLiteStore) SaveAttempt(ctx context.Context, runID string, att RepairAttempt) error {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO repair_attempts (run_id, number, strategy, signature, outcome, diff, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, att.Number, att.Strategy, att.Signature, att.Outcome, att.Diff, att.Stderr)
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetAttempts retrieves a run's repair history in attempt order.
// Returns empty slice (not nil) if no attempts were recorded.
func (s *SQLiteStore) GetAttempts(ctx context.Context, runID string) ([]RepairAttempt, error) {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Double sort: number ASC, id ASC keeps insertion order even if numbers repeat
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, strategy, signature, outcome, diff, stderr, created_at
		FROM repair_attempts
		WHERE run_id = ?
		ORDER BY number ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []RepairAttempt{}
	for rows.Next() {
		var att RepairAttempt
		if err := rows.Scan(&att.Number, &att.Strategy, &att.Signature, &att.Outcome, &att.Diff, &att.Stderr, &att.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return attempts, nil
}
