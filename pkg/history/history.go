// Package history keeps a local SQLite record of up and down runs.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const DefaultFilename = "history.db"

const (
	OutcomeReady  = "ready"
	OutcomeFailed = "failed"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		base_dir   TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		outcome    TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		stopped_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS run_services (
		run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		name       TEXT NOT NULL,
		pid        INTEGER NOT NULL,
		stdout_log TEXT NOT NULL,
		stderr_log TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at)`,
}

type Run struct {
	ID        string                `json:"id"`
	BaseDir   string                `json:"base_dir"`
	StartedAt time.Time             `json:"started_at"`
	StoppedAt time.Time             `json:"stopped_at,omitzero"`
	Outcome   string                `json:"outcome"`
	Error     string                `json:"error,omitempty"`
	Services  []state.ServiceRecord `json:"services,omitempty"`
}

type Store struct {
	db *sql.DB
}

func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, state.StateDirName, DefaultFilename)
}

// Open opens (creating when needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir history dir")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping history db")
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "create history schema")
		}
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordUp stores one up run together with the services it started.
func (s *Store) RecordUp(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, base_dir, started_at, outcome, error) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.BaseDir, run.StartedAt.UnixMilli(), run.Outcome, run.Error,
	); err != nil {
		return errors.Wrap(err, "insert run")
	}
	for i, svc := range run.Services {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_services (run_id, position, name, pid, stdout_log, stderr_log) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, svc.Name, svc.PID, svc.StdoutLog, svc.StderrLog,
		); err != nil {
			return errors.Wrapf(err, "insert service %s", svc.Name)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// RecordDown marks run id as stopped at t. Unknown ids are ignored.
func (s *Store) RecordDown(ctx context.Context, id string, t time.Time) error {
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL`, t.UnixMilli(), id)
	return errors.Wrap(err, "record down")
}

// List returns the latest runs first, without their services.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, base_dir, started_at, outcome, error, stopped_at FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

// Get returns run id with its services, or nil when unknown.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, base_dir, started_at, outcome, error, stopped_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, pid, stdout_log, stderr_log FROM run_services WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "query run services")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var svc state.ServiceRecord
		if err := rows.Scan(&svc.Name, &svc.PID, &svc.StdoutLog, &svc.StderrLog); err != nil {
			return nil, errors.Wrap(err, "scan run service")
		}
		r.Services = append(r.Services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate run services")
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r         Run
		startedMs int64
		stoppedMs sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.BaseDir, &startedMs, &r.Outcome, &r.Error, &stoppedMs); err != nil {
		return Run{}, errors.Wrap(err, "scan run")
	}
	r.StartedAt = time.UnixMilli(startedMs)
	if stoppedMs.Valid {
		r.StoppedAt = time.UnixMilli(stoppedMs.Int64)
	}
	return r, nil
}
