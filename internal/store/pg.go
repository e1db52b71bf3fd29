package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reportd/internal/platform/pg"
	"reportd/internal/shared"
)

// PGStore keeps run history in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, waits for the database to come up and
// applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PGStore, error) {
	if err := pg.WaitForDB(ctx, dsn, pg.DefaultWaitOptions()); err != nil {
		return nil, err
	}
	if err := pg.ApplyMigrationsFromFS(dsn, migrationsFS, "migrations/postgres"); err != nil {
		return nil, fmt.Errorf("migrate run store: %w", err)
	}

	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

// NewPGStore wraps an existing pool with the schema already in place.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Begin(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, job, mode, trigger_kind, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Job, run.Mode, run.Trigger, run.StartedAt, run.Status)
	if err != nil {
		return shared.Wrapf(err, "insert run %s", run.ID)
	}
	return nil
}

func (s *PGStore) Finish(ctx context.Context, id string, outcome Outcome) error {
	failedStep, exitCode, errMsg := outcomeFields(outcome)
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs
		 SET status = $1, finished_at = $2, failed_step = $3, exit_code = $4, error = $5
		 WHERE id = $6`,
		outcome.Status, outcome.FinishedAt, failedStep, exitCode, errMsg, id)
	if err != nil {
		return shared.Wrapf(err, "finish run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	return nil
}

func (s *PGStore) Latest(ctx context.Context) (Run, error) {
	row := s.pool.QueryRow(ctx, selectRunsPG+` ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRunPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no runs recorded", shared.ErrNotFound)
	}
	return run, err
}

func (s *PGStore) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, selectRunsPG+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, shared.Wrap(err, "list runs")
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRunPG(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

const selectRunsPG = `
SELECT id, job, mode, trigger_kind, started_at, finished_at, status, failed_step, exit_code, error
FROM runs`

func scanRunPG(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Job, &run.Mode, &run.Trigger,
		&run.StartedAt, &run.FinishedAt, &run.Status, &run.FailedStep, &run.ExitCode, &run.Error)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}
