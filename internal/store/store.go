// Package store persists report run history. Two backends exist: the
// embedded SQLite file used by default and PostgreSQL for deployments
// that share history across hosts. Both apply their schema migrations
// on open from the embedded migration files.
package store

import (
	"context"
	"embed"
	"time"

	"github.com/google/uuid"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Run triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Run is one execution of the report job.
type Run struct {
	ID         string
	Job        string
	Mode       string
	Trigger    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	// FailedStep, ExitCode and Error are set only for failed runs.
	FailedStep *string
	ExitCode   *int
	Error      *string
}

// Outcome describes how a run ended.
type Outcome struct {
	Status     string
	FinishedAt time.Time
	FailedStep string
	// ExitCode below zero means no process exit code applies.
	ExitCode int
	Error    string
}

// SuccessOutcome builds the outcome for a clean run.
func SuccessOutcome(finishedAt time.Time) Outcome {
	return Outcome{Status: StatusSuccess, FinishedAt: finishedAt.UTC(), ExitCode: -1}
}

// FailureOutcome builds the outcome for a failed run. Pass exitCode -1
// when no process exit code applies.
func FailureOutcome(finishedAt time.Time, failedStep string, exitCode int, err error) Outcome {
	o := Outcome{
		Status:     StatusFailure,
		FinishedAt: finishedAt.UTC(),
		FailedStep: failedStep,
		ExitCode:   exitCode,
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// NewRun builds a running Run record with a fresh id.
func NewRun(job, mode, trigger string, startedAt time.Time) Run {
	return Run{
		ID:        uuid.NewString(),
		Job:       job,
		Mode:      mode,
		Trigger:   trigger,
		StartedAt: startedAt.UTC(),
		Status:    StatusRunning,
	}
}

// RunStore records and queries run history.
type RunStore interface {
	// Begin inserts a run in the running state.
	Begin(ctx context.Context, run Run) error
	// Finish records the outcome of a previously begun run.
	Finish(ctx context.Context, id string, outcome Outcome) error
	// Latest returns the most recently started run. Returns an error
	// wrapping shared.ErrNotFound when no runs exist.
	Latest(ctx context.Context) (Run, error)
	// List returns up to limit runs, most recently started first.
	List(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

func outcomeFields(o Outcome) (failedStep *string, exitCode *int, errMsg *string) {
	if o.FailedStep != "" {
		failedStep = &o.FailedStep
	}
	if o.ExitCode >= 0 {
		exitCode = &o.ExitCode
	}
	if o.Error != "" {
		errMsg = &o.Error
	}
	return failedStep, exitCode, errMsg
}
