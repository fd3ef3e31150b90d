// Package store is the run index: a SQLite database under the base dir
// recording every run's id, seed, outcome, and artifact paths. The CLI's
// run listing and multi-run doctor mode read from it; engines never do.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	scenario_name  TEXT NOT NULL,
	scenario_digest TEXT NOT NULL,
	seed           INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	trace_path     TEXT,
	manifest_path  TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario_digest);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
`

// Run is one indexed run record.
type Run struct {
	RunID          string
	ScenarioName   string
	ScenarioDigest string
	Seed           uint64
	Outcome        string
	TracePath      string
	ManifestPath   string
	CreatedAt      string
}

// Store provides the run index. SQLite with WAL mode; a single writer
// connection avoids SQLITE_BUSY under concurrent doctor runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the index database at path. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect run index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply run index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert records a run. Re-inserting the same run id is an error: run ids
// are unique per recording.
func (s *Store) Insert(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, scenario_name, scenario_digest, seed, outcome, trace_path, manifest_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.ScenarioName, r.ScenarioDigest, int64(r.Seed), r.Outcome, r.TracePath, r.ManifestPath, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first, capped at limit.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, scenario_name, scenario_digest, seed, outcome, trace_path, manifest_path, created_at
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, scenario_name, scenario_digest, seed, outcome, trace_path, manifest_path, created_at
		FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return &runs[0], nil
}

// ByOutcome returns runs with the given outcome, newest first.
func (s *Store) ByOutcome(ctx context.Context, outcome string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, scenario_name, scenario_digest, seed, outcome, trace_path, manifest_path, created_at
		FROM runs WHERE outcome = ? ORDER BY created_at DESC, run_id DESC LIMIT ?`, outcome, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s runs: %w", outcome, err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var out []Run
	for rows.Next() {
		var r Run
		var seed int64
		var tracePath, manifestPath sql.NullString
		if err := rows.Scan(&r.RunID, &r.ScenarioName, &r.ScenarioDigest, &seed, &r.Outcome, &tracePath, &manifestPath, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Seed = uint64(seed)
		r.TracePath = tracePath.String
		r.ManifestPath = manifestPath.String
		out = append(out, r)
	}
	return out, rows.Err()
}
