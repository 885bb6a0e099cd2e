// Package history persists run results in a SQLite database.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// Run is the summary row of one stored run.
type Run struct {
	ID          string        `json:"id"`
	CaseID      string        `json:"case_id"`
	CaseName    string        `json:"case_name"`
	Status      loader.Status `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Duration    time.Duration `json:"duration"`
	Iterations  int           `json:"iterations"`
	Total       int           `json:"total"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Warnings    int           `json:"warnings"`
	Errors      int           `json:"errors"`
	Aborted     bool          `json:"aborted"`
	AbortReason string        `json:"abort_reason,omitempty"`
}

// Store provides SQLite persistence for run results.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection gets its own in-memory database.
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		case_name TEXT,
		status TEXT NOT NULL,
		started_at DATETIME,
		ended_at DATETIME,
		duration_ms INTEGER DEFAULT 0,
		iterations INTEGER DEFAULT 0,
		total_count INTEGER DEFAULT 0,
		pass_count INTEGER DEFAULT 0,
		fail_count INTEGER DEFAULT 0,
		warning_count INTEGER DEFAULT 0,
		error_count INTEGER DEFAULT 0,
		aborted INTEGER DEFAULT 0,
		abort_reason TEXT,
		result_json TEXT
	);

	CREATE TABLE IF NOT EXISTS run_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		case_id TEXT NOT NULL,
		command_id TEXT,
		command_index INTEGER,
		command_text TEXT,
		error TEXT,
		kind TEXT,
		severity TEXT,
		occurred_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_run_failures_run_id ON run_failures(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_case_id ON runs(case_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores r and its failure log. Saving a run id again replaces it.
func (s *Store) SaveRun(r *engine.RunResult) error {
	if r.RunID == "" {
		return fmt.Errorf("run has no id")
	}

	resultJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM run_failures WHERE run_id = ?", r.RunID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM runs WHERE id = ?", r.RunID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, case_id, case_name, status, started_at, ended_at, duration_ms,
		                  iterations, total_count, pass_count, fail_count, warning_count,
		                  error_count, aborted, abort_reason, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.CaseID, r.CaseName, string(r.Status), r.StartTime, r.EndTime, r.Duration.Milliseconds(),
		r.Iterations, r.Total, r.Passed, r.Failed, r.Warnings,
		r.Errors, r.Aborted, r.AbortReason, string(resultJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, f := range r.Failures {
		_, err = tx.Exec(`
			INSERT INTO run_failures (run_id, case_id, command_id, command_index, command_text,
			                          error, kind, severity, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.RunID, f.CaseID, f.CommandID, f.CommandIndex, f.CommandText,
			f.Error, f.Kind.String(), string(f.Severity), f.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, case_id, case_name, status, started_at, ended_at, duration_ms,
	iterations, total_count, pass_count, fail_count, warning_count, error_count,
	aborted, abort_reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var status string
	var caseName, abortReason sql.NullString
	var startedAt, endedAt sql.NullTime
	var durationMs int64

	if err := sc.Scan(
		&run.ID, &run.CaseID, &caseName, &status, &startedAt, &endedAt, &durationMs,
		&run.Iterations, &run.Total, &run.Passed, &run.Failed, &run.Warnings, &run.Errors,
		&run.Aborted, &abortReason,
	); err != nil {
		return nil, err
	}

	run.Status = loader.Status(status)
	run.CaseName = caseName.String
	run.AbortReason = abortReason.String
	if startedAt.Valid {
		run.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		run.EndedAt = endedAt.Time
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

// GetRun retrieves a run summary by ID. It returns nil when the run does
// not exist.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetResult retrieves the full stored result of a run. It returns nil when
// the run does not exist.
func (s *Store) GetResult(id string) (*engine.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resultJSON string
	err := s.db.QueryRow("SELECT result_json FROM runs WHERE id = ?", id).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r engine.RunResult
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &r, nil
}

// ListRuns retrieves runs, most recent first.
func (s *Store) ListRuns(limit, offset int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// CountRuns returns the total number of runs.
func (s *Store) CountRuns() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// Failures returns the failure log of a run in recorded order.
func (s *Store) Failures(runID string) ([]engine.FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT case_id, command_id, command_index, command_text, error, kind, severity, occurred_at
		FROM run_failures WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []engine.FailureRecord
	for rows.Next() {
		var f engine.FailureRecord
		var commandID, commandText, errText, kind, severity sql.NullString
		var occurredAt sql.NullTime
		if err := rows.Scan(&f.CaseID, &commandID, &f.CommandIndex, &commandText,
			&errText, &kind, &severity, &occurredAt); err != nil {
			return nil, err
		}
		f.CommandID = commandID.String
		f.CommandText = commandText.String
		f.Error = errText.String
		f.Kind = engine.ParseErrorKind(kind.String)
		f.Severity = loader.Severity(severity.String)
		if occurredAt.Valid {
			f.Timestamp = occurredAt.Time
		}
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

// DeleteRun deletes a run and its failures.
func (s *Store) DeleteRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM run_failures WHERE run_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	return err
}
