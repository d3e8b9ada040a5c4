// Package journal persists a change history across runs: one row per run
// and one row per change made or pretended, in a SQLite database under the
// user's data directory.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"caerbannog/internal/op"
)

// Store records runs and their changes. It implements the engine's Recorder
// interface; recording failures are logged and swallowed so journaling never
// interrupts convergence.
type Store struct {
	db    *sql.DB
	runID int64
}

// Open opens or creates the journal database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target TEXT NOT NULL,
	dry_run INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	outcome TEXT
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize runs schema: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	subject TEXT NOT NULL,
	assertion TEXT NOT NULL,
	change TEXT NOT NULL,
	recorded_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize changes schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Begin opens a run row for the given target.
func (s *Store) Begin(target string, dryRun bool) error {
	res, err := s.db.Exec(
		`INSERT INTO runs (target, dry_run, started_at) VALUES (?, ?, ?)`,
		target, boolToInt(dryRun), now(),
	)
	if err != nil {
		return fmt.Errorf("begin journal run: %w", err)
	}
	s.runID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("begin journal run: %w", err)
	}
	return nil
}

// Record journals one change under the current run.
func (s *Store) Record(event op.ChangeEvent) {
	_, err := s.db.Exec(
		`INSERT INTO changes (run_id, subject, assertion, change, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		s.runID, event.Subject, event.Assertion, event.Change, now(),
	)
	if err != nil {
		slog.Error("journal change", "error", err)
	}
}

// Finish closes the current run row with an outcome.
func (s *Store) Finish(outcome string) {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?`,
		now(), outcome, s.runID,
	)
	if err != nil {
		slog.Error("finish journal run", "error", err)
	}
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openDB opens a SQLite database with standard pragmas (WAL mode, busy timeout).
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
