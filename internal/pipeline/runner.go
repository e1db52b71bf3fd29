package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"reportd/internal/shared"
)

// maxStderrCapture bounds how much stderr is kept for error reporting.
// The full stream still reaches the log at debug level.
const maxStderrCapture = 16 << 10

// Runner executes jobs step by step.
type Runner struct {
	log   *slog.Logger
	shell string
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell overrides the shell used to interpret step commands.
func WithShell(shell string) Option {
	return func(r *Runner) { r.shell = shell }
}

// NewRunner creates a Runner. The logger is required; shell defaults
// to /bin/sh.
func NewRunner(log *slog.Logger, opts ...Option) *Runner {
	r := &Runner{log: log, shell: "/bin/sh"}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes the job's steps in order. It returns the results of the
// steps that ran and, on the first failing step, a *StepError. A step
// failure leaves the remaining steps unexecuted.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	res := Result{Job: job.Name}
	log := r.log.With(slog.String("job", job.Name))

	for i, step := range job.Steps {
		if err := ctx.Err(); err != nil {
			return res, shared.Wrapf(err, "job %s aborted before step %d", job.Name, i)
		}

		sr, stderr, err := r.runStep(ctx, i, step, log)
		res.Steps = append(res.Steps, sr)
		if err != nil {
			return res, &StepError{
				Index:    i,
				Name:     step.Name,
				ExitCode: sr.ExitCode,
				Stderr:   stderr,
				Err:      err,
			}
		}
	}
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, index int, step Step, log *slog.Logger) (StepResult, string, error) {
	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(stepCtx, r.shell, "-c", step.Command)
	cmd.Env = overlayEnv(os.Environ(), step.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Info("step started", slog.Int("index", index), slog.String("step", step.Name))
	started := time.Now()
	runErr := cmd.Run()
	duration := time.Since(started)

	sr := StepResult{
		Index:    index,
		Name:     step.Name,
		Started:  started,
		Duration: duration,
	}

	if out := stdout.String(); out != "" {
		log.Debug("step stdout", slog.String("step", step.Name), slog.String("output", out))
	}
	if errOut := stderr.String(); errOut != "" {
		log.Debug("step stderr", slog.String("step", step.Name), slog.String("output", errOut))
	}

	if runErr == nil {
		log.Info("step finished",
			slog.Int("index", index),
			slog.String("step", step.Name),
			slog.Duration("duration", duration))
		return sr, "", nil
	}

	captured := tail(stderr.String(), maxStderrCapture)

	var exitErr *exec.ExitError
	switch {
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		sr.ExitCode = -1
		runErr = shared.MarkKind(fmt.Errorf("timed out after %s", step.Timeout), shared.KindTimeout)
	case errors.As(runErr, &exitErr):
		sr.ExitCode = exitErr.ExitCode()
		runErr = fmt.Errorf("exit code %d", sr.ExitCode)
	default:
		// The subprocess never started (shell missing, bad permissions).
		sr.ExitCode = -1
		runErr = shared.MarkKind(runErr, shared.KindInternal)
	}

	log.Error("step failed",
		slog.Int("index", index),
		slog.String("step", step.Name),
		slog.Int("exit_code", sr.ExitCode),
		slog.Duration("duration", duration),
		slog.Any("error", runErr))

	return sr, captured, runErr
}

// overlayEnv appends the step bindings to the inherited environment.
// Later entries win on duplicate names, so bindings override inherited
// values of the same name.
func overlayEnv(inherited []string, bindings map[string]string) []string {
	if len(bindings) == 0 {
		return inherited
	}
	env := make([]string, len(inherited), len(inherited)+len(bindings))
	copy(env, inherited)
	for k, v := range bindings {
		env = append(env, k+"="+v)
	}
	return env
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
