// Package history persists run results in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists run history in SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	workflow     TEXT NOT NULL,
	event        TEXT NOT NULL,
	branch       TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	name         TEXT NOT NULL,
	matrix       TEXT NOT NULL,
	status       TEXT NOT NULL,
	steps_total  INTEGER NOT NULL,
	steps_failed INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL,
	PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunRecord is a persisted run.
type RunRecord struct {
	ID         string
	Workflow   string
	Event      string
	Branch     string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Jobs       []JobRecord
}

// JobRecord is a persisted matrix job.
type JobRecord struct {
	Name        string
	Matrix      string
	Status      string
	StepsTotal  int
	StepsFailed int
	Duration    time.Duration
}

// SaveRun records a run and its jobs in one transaction.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, event, branch, status, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Workflow, rec.Event, rec.Branch, rec.Status,
		rec.StartedAt.UTC().UnixMilli(), rec.FinishedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, job := range rec.Jobs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO jobs (run_id, name, matrix, status, steps_total, steps_failed, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, job.Name, job.Matrix, job.Status,
			job.StepsTotal, job.StepsFailed, job.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert job %s: %w", job.Name, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow, event, branch, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished int64
		if err := rows.Scan(&rec.ID, &rec.Workflow, &rec.Event, &rec.Branch, &rec.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListJobs returns the jobs of a run.
func (s *Store) ListJobs(ctx context.Context, runID string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, matrix, status, steps_total, steps_failed, duration_ms
		 FROM jobs WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		var rec JobRecord
		var durationMs int64
		if err := rows.Scan(&rec.Name, &rec.Matrix, &rec.Status, &rec.StepsTotal, &rec.StepsFailed, &durationMs); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}
