// Package pipeline executes ordered sequences of shell steps.
//
// A Job is a strictly sequential list of Steps. Each step spawns a
// subprocess, overlays its environment bindings on the inherited
// process environment, and blocks until the subprocess exits. The
// first non-zero exit aborts the remaining sequence. Steps are never
// retried. Later steps may depend on the ambient side effects of
// earlier ones (installed packages, files on disk); the runner does
// not isolate steps from each other.
package pipeline

import (
	"fmt"
	"time"
)

// Step is a single shell command with its environment bindings.
type Step struct {
	// Name identifies the step in logs, results and errors.
	Name string
	// Command is passed to the shell as `sh -c <command>`.
	Command string
	// Env is overlaid on the inherited process environment.
	Env map[string]string
	// Timeout bounds the subprocess runtime. Zero means no timeout.
	Timeout time.Duration
}

// Job is an ordered sequence of steps executed as a unit.
type Job struct {
	Name  string
	Steps []Step
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Index    int
	Name     string
	ExitCode int
	Started  time.Time
	Duration time.Duration
}

// Result records the outcome of a job run. On failure, Steps holds the
// results up to and including the failed step.
type Result struct {
	Job   string
	Steps []StepResult
}

// StepError reports a step whose subprocess exited non-zero (or failed
// to run at all). It aborts the remaining sequence.
type StepError struct {
	Index    int
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("step %d (%s): exit code %d", e.Index, e.Name, e.ExitCode)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
