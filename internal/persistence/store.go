package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sitesmith/sitesmith/internal/scheduler"
	_ "modernc.org/sqlite"
)

// RunStatus is the lifecycle state of a synthesis run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded synthesis run.
type Run struct {
	ID          string
	Requirement string
	Status      RunStatus
	Feedback    string
	FileCount   int
	Duration    time.Duration
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RepairAttempt is one recorded build attempt in a run's repair history.
type RepairAttempt struct {
	Number    int
	Strategy  string // fix strategy preceding the build: none, quick_fix, ai_fix
	Signature string // classifier signature when Strategy is quick_fix
	Outcome   string // passed or failed
	Diff      string // unified diff of the applied fix, empty for the first build
	Stderr    string // trimmed build error excerpt
	Timestamp time.Time
}

// Store defines the persistence interface for runs, planned tasks, and
// repair attempts.
type Store interface {
	// Run lifecycle
	CreateRun(ctx context.Context, runID, requirement string) error
	FinishRun(ctx context.Context, runID string, status RunStatus, feedback string, fileCount int, duration time.Duration) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Planned tasks
	SaveTasks(ctx context.Context, runID string, tasks []*scheduler.Task) error
	UpdateTaskStatus(ctx context.Context, runID, taskID string, status scheduler.TaskStatus, taskErr error) error
	GetTasks(ctx context.Context, runID string) ([]*scheduler.Task, error)

	// Repair history
	SaveAttempt(ctx context.Context, runID string, att RepairAttempt) error
	GetAttempts(ctx context.Context, runID string) ([]RepairAttempt, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Open SQLite with connection string for WAL mode, busy timeout
	// Note: modernc.org/sqlite doesn't support _foreign_keys in connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Allow 2 connections: one for primary queries, one for subqueries (prevents deadlock in GetTasks)
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	// Use file::memory:?cache=shared to allow multiple connections to the same in-memory DB
	// Note: modernc.org/sqlite doesn't support _foreign_keys in connection string
	connStr := "file::memory:?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Allow 2 connections for subquery parallelism
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
