package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sitesmith/sitesmith/internal/scheduler"
)

// SaveTasks saves a run's planned tasks and their dependencies in one
// transaction. Uses ON CONFLICT to make saves idempotent; the slice
// order becomes the stored plan order.
func (s *SQLiteStore) SaveTasks(ctx context.Context, runID string, tasks []*scheduler.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for ordinal, task := range tasks {
		// Convert error to string for storage
		errorStr := ""
		if task.Err != nil {
			errorStr = task.Err.Error()
		}

		// Convert Files slice to comma-separated string
		files := strings.Join(task.Files, ",")

		// Upsert task (insert or update on conflict)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tasks (run_id, task_id, name, description, files, priority, ordinal, status, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT(run_id, task_id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				files = excluded.files,
				priority = excluded.priority,
				ordinal = excluded.ordinal,
				status = excluded.status,
				error = excluded.error,
				updated_at = CURRENT_TIMESTAMP
		`, runID, task.ID, task.Name, task.Description, files, task.Priority, ordinal, task.Status, errorStr)
		if err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
		}
	}

	// Refresh dependencies for this run
	_, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	// All tasks exist by now, so dependency rows can reference any of them
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			// Check if dependency exists (enforces foreign key)
			var exists int
			err = tx.QueryRowContext(ctx, `SELECT 1 FROM run_tasks WHERE run_id = ? AND task_id = ?`, runID, depID).Scan(&exists)
			if err == sql.ErrNoRows {
				return fmt.Errorf("foreign key constraint failed: dependency task %s does not exist", depID)
			}
			if err != nil {
				return fmt.Errorf("failed to check dependency existence: %w", err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (run_id, task_id, depends_on_id)
				VALUES (?, ?, ?)
			`, runID, task.ID, depID)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateTaskStatus updates the status and error of one planned task.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, runID, taskID string, status scheduler.TaskStatus, taskErr error) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Convert error to string
	errorStr := ""
	if taskErr != nil {
		errorStr = taskErr.Error()
	}

	// Update task status
	res, err := tx.ExecContext(ctx, `
		UPDATE run_tasks
		SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND task_id = ?
	`, status, errorStr, runID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	// Check if task was found
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTasks returns a run's planned tasks in plan order, with their
// dependencies.
func (s *SQLiteStore) GetTasks(ctx context.Context, runID string) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, name, description, files, priority, status, error
		FROM run_tasks
		WHERE run_id = ?
		ORDER BY ordinal
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*scheduler.Task
	for rows.Next() {
		task := &scheduler.Task{}
		var errorStr string
		var files string

		err := rows.Scan(&task.ID, &task.Name, &task.Description, &files, &task.Priority, &task.Status, &errorStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		// Parse Files from comma-separated string
		if files != "" {
			task.Files = strings.Split(files, ",")
		}

		// Reconstruct error if present
		if errorStr != "" {
			task.Err = fmt.Errorf("%s", errorStr)
		}

		// Load dependencies for this task
		depRows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id
			FROM task_dependencies
			WHERE run_id = ? AND task_id = ?
		`, runID, task.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependencies for task %s: %w", task.ID, err)
		}

		task.DependsOn = []string{}
		for depRows.Next() {
			var depID string
			if err := depRows.Scan(&depID); err != nil {
				depRows.Close()
				return nil, fmt.Errorf("failed to scan dependency: %w", err)
			}
			task.DependsOn = append(task.DependsOn, depID)
		}
		depRows.Close()

		if err := depRows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating dependencies: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
