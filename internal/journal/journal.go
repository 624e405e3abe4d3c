// Package journal persists run and job outcomes to SQLite so `forge history`
// can answer what happened without scraping logs.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"forge/internal/config"
	"forge/internal/joblist"
)

// Outcome classifies how a run or job ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeSkipped   Outcome = "skipped"
)

// Run is one orchestrator invocation.
type Run struct {
	ID         string
	Platform   string
	Stages     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    Outcome
	Reason     string
}

// Job is one dispatched directive within a run.
type Job struct {
	RunID     string
	Index     int
	Mode      string
	SourceDir string
	Outcome   Outcome
	Duration  time.Duration
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    stages TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    outcome TEXT NOT NULL DEFAULT 'aborted',
    reason TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS run_jobs (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    mode TEXT NOT NULL,
    source_dir TEXT NOT NULL,
    outcome TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx)
);
`

// Open initializes or connects to the journal database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts the run row at dispatch start.
func (s *Store) StartRun(ctx context.Context, id, platform, stages string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, platform, stages, started_at) VALUES (?, ?, ?, ?)`,
		id, platform, stages, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the run's final outcome and reason.
func (s *Store) FinishRun(ctx context.Context, id string, outcome Outcome, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, reason = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), string(outcome), reason, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordJob stores one dispatched directive's result.
func (s *Store) RecordJob(ctx context.Context, runID string, directive joblist.Directive, outcome Outcome, elapsed time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_jobs (run_id, idx, mode, source_dir, outcome, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID, directive.Index, directive.Mode.String(), directive.SourceDir,
		string(outcome), elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, stages, started_at, finished_at, outcome, reason
         FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var finished sql.NullString
		var outcome string
		if err := rows.Scan(&run.ID, &run.Platform, &run.Stages, &started, &finished, &outcome, &run.Reason); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			run.FinishedAt = &parsed
		}
		run.Outcome = Outcome(outcome)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// JobsForRun returns the run's jobs in dispatch order.
func (s *Store) JobsForRun(ctx context.Context, runID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, idx, mode, source_dir, outcome, duration_ms
         FROM run_jobs WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var outcome string
		var durationMS int64
		if err := rows.Scan(&job.RunID, &job.Index, &job.Mode, &job.SourceDir, &outcome, &durationMS); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Outcome = Outcome(outcome)
		job.Duration = time.Duration(durationMS) * time.Millisecond
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
