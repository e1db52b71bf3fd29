package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reportd/internal/platform/sqlite"
	"reportd/internal/shared"
)

// SQLiteStore keeps run history in the embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := sqlite.ApplyMigrationsFromFS(path, migrationsFS, "migrations/sqlite"); err != nil {
		return nil, fmt.Errorf("migrate run store: %w", err)
	}

	db, err := sqlite.NewDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an existing database handle. The schema must
// already be in place; used by tests running on in-memory databases.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Begin(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, mode, trigger_kind, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Mode, run.Trigger, run.StartedAt.UTC().Format(time.RFC3339Nano), run.Status)
	if err != nil {
		return shared.Wrapf(err, "insert run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) Finish(ctx context.Context, id string, outcome Outcome) error {
	failedStep, exitCode, errMsg := outcomeFields(outcome)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs
		 SET status = ?, finished_at = ?, failed_step = ?, exit_code = ?, error = ?
		 WHERE id = ?`,
		outcome.Status, outcome.FinishedAt.UTC().Format(time.RFC3339Nano), failedStep, exitCode, errMsg, id)
	if err != nil {
		return shared.Wrapf(err, "finish run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRunsSQLite+` ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRunSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no runs recorded", shared.ErrNotFound)
	}
	return run, err
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRunsSQLite+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, shared.Wrap(err, "list runs")
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRunSQLite(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectRunsSQLite = `
SELECT id, job, mode, trigger_kind, started_at, finished_at, status, failed_step, exit_code, error
FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as RFC 3339 text; SQLite has no native
// timestamp type.
func scanRunSQLite(row rowScanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		failedStep sql.NullString
		exitCode   sql.NullInt64
		errMsg     sql.NullString
	)
	err := row.Scan(&run.ID, &run.Job, &run.Mode, &run.Trigger,
		&startedAt, &finishedAt, &run.Status, &failedStep, &exitCode, &errMsg)
	if err != nil {
		return Run{}, err
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, shared.Wrapf(err, "parse started_at for run %s", run.ID)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Run{}, shared.Wrapf(err, "parse finished_at for run %s", run.ID)
		}
		run.FinishedAt = &t
	}
	if failedStep.Valid {
		run.FailedStep = &failedStep.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return run, nil
}
