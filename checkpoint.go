package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source_db   TEXT NOT NULL,
	target      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	status      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stages (
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, stage)
);
CREATE TABLE IF NOT EXISTS tasks (
	run_id     TEXT NOT NULL,
	task_key   TEXT NOT NULL,
	status     TEXT NOT NULL,
	row_count  INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, task_key)
);
`

const (
	runRunning   = "running"
	runSucceeded = "success"
	runFailed    = "failed"
)

// checkpointStore persists run, stage and task state so an interrupted
// migration can resume without repeating finished work.
type checkpointStore struct {
	db *sql.DB
}

// checkpointRun is one migration attempt.
type checkpointRun struct {
	ID        string
	SourceDB  string
	Target    string
	StartedAt time.Time
	Status    string
}

func openCheckpointStore(path string) (*checkpointStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(checkpointSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint store %s: %w", path, err)
	}
	return &checkpointStore{db: db}, nil
}

func (s *checkpointStore) Close() error { return s.db.Close() }

// StartRun records a new run and returns it.
func (s *checkpointStore) StartRun(ctx context.Context, sourceDB, target string) (*checkpointRun, error) {
	run := &checkpointRun{
		ID:        uuid.NewString(),
		SourceDB:  sourceDB,
		Target:    target,
		StartedAt: time.Now().UTC(),
		Status:    runRunning,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source_db, target, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SourceDB, run.Target, run.StartedAt, run.Status)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// LastIncompleteRun returns the newest run for the same source and target
// that did not succeed, or nil when there is none.
func (s *checkpointStore) LastIncompleteRun(ctx context.Context, sourceDB, target string) (*checkpointRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_db, target, started_at, status FROM runs
		 WHERE source_db = ? AND target = ? AND status != ?
		 ORDER BY started_at DESC LIMIT 1`,
		sourceDB, target, runSucceeded)
	var r checkpointRun
	if err := row.Scan(&r.ID, &r.SourceDB, &r.Target, &r.StartedAt, &r.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find incomplete run: %w", err)
	}
	return &r, nil
}

// FinishRun records the terminal status of a run.
func (s *checkpointStore) FinishRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// MarkStage records that a stage of the apply sequence completed.
func (s *checkpointStore) MarkStage(ctx context.Context, runID, stage string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (run_id, stage, finished_at) VALUES (?, ?, ?)
		 ON CONFLICT (run_id, stage) DO UPDATE SET finished_at = excluded.finished_at`,
		runID, stage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark stage %s: %w", stage, err)
	}
	return nil
}

// CompletedStages returns the stages recorded for a run.
func (s *checkpointStore) CompletedStages(ctx context.Context, runID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage FROM stages WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, err
		}
		done[stage] = true
	}
	return done, rows.Err()
}

// RecordTask stores the latest outcome of a task.
func (s *checkpointStore) RecordTask(ctx context.Context, runID string, res TaskResult) error {
	var errMsg sql.NullString
	if res.Err != nil {
		errMsg = sql.NullString{String: res.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (run_id, task_key, status, row_count, error, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, task_key) DO UPDATE SET
		   status = excluded.status, row_count = excluded.row_count,
		   error = excluded.error, updated_at = excluded.updated_at`,
		runID, res.Task.Key(), string(res.Status), res.Rows, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record task %s: %w", res.Task.Key(), err)
	}
	return nil
}

// TaskStates returns the recorded status and row count of every task in a run.
func (s *checkpointStore) TaskStates(ctx context.Context, runID string) (map[string]TaskResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_key, status, row_count FROM tasks WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()
	states := make(map[string]TaskResult)
	for rows.Next() {
		var key, status string
		var n int64
		if err := rows.Scan(&key, &status, &n); err != nil {
			return nil, err
		}
		states[key] = TaskResult{Status: TaskStatus(status), Rows: n}
	}
	return states, rows.Err()
}
