package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportd/internal/config"
	"reportd/internal/pipeline"
	"reportd/internal/report"
	"reportd/internal/store"
)

type fakeRunStore struct {
	begun    []store.Run
	finished map[string]store.Outcome
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{finished: make(map[string]store.Outcome)}
}

func (f *fakeRunStore) Begin(ctx context.Context, run store.Run) error {
	f.begun = append(f.begun, run)
	return nil
}

func (f *fakeRunStore) Finish(ctx context.Context, id string, outcome store.Outcome) error {
	f.finished[id] = outcome
	return nil
}

func (f *fakeRunStore) Latest(ctx context.Context) (store.Run, error) {
	return store.Run{}, errors.New("not implemented")
}

func (f *fakeRunStore) List(ctx context.Context, limit int) ([]store.Run, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunStore) Close() error { return nil }

type fakeJob struct {
	err   error
	calls int
}

func (j *fakeJob) Run(ctx context.Context) error {
	j.calls++
	return j.err
}

func testApp() *App {
	var cfg config.Config
	cfg.Job.Mode = "native"
	return &App{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}

func TestExecuteRun_Success(t *testing.T) {
	a := testApp()
	st := newFakeRunStore()
	job := &fakeJob{}

	err := a.executeRun(context.Background(), st, nil, job, store.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, job.calls)

	require.Len(t, st.begun, 1)
	run := st.begun[0]
	assert.Equal(t, jobName, run.Job)
	assert.Equal(t, store.TriggerManual, run.Trigger)
	assert.Equal(t, store.StatusRunning, run.Status)

	outcome, ok := st.finished[run.ID]
	require.True(t, ok)
	assert.Equal(t, store.StatusSuccess, outcome.Status)
}

func TestExecuteRun_Failure(t *testing.T) {
	a := testApp()
	st := newFakeRunStore()
	jobErr := errors.New("smtp down")
	job := &fakeJob{err: jobErr}

	err := a.executeRun(context.Background(), st, nil, job, store.TriggerSchedule)
	require.ErrorIs(t, err, jobErr)

	require.Len(t, st.begun, 1)
	outcome := st.finished[st.begun[0].ID]
	assert.Equal(t, store.StatusFailure, outcome.Status)
	assert.Equal(t, "", outcome.FailedStep)
	assert.Equal(t, -1, outcome.ExitCode)
	assert.Contains(t, outcome.Error, "smtp down")
}

func TestExecuteRun_StepFailureDetails(t *testing.T) {
	a := testApp()
	st := newFakeRunStore()
	stepErr := &pipeline.StepError{Index: 0, Name: "install-deps", ExitCode: 3, Err: errors.New("pip failed")}
	job := &fakeJob{err: stepErr}

	err := a.executeRun(context.Background(), st, nil, job, store.TriggerSchedule)
	require.Error(t, err)

	outcome := st.finished[st.begun[0].ID]
	assert.Equal(t, "install-deps", outcome.FailedStep)
	assert.Equal(t, 3, outcome.ExitCode)
}

func TestFailureDetails(t *testing.T) {
	step, code := failureDetails(errors.New("plain"))
	assert.Equal(t, "", step)
	assert.Equal(t, -1, code)

	wrapped := &pipeline.StepError{Index: 1, Name: "generate-report", ExitCode: 2, Err: errors.New("boom")}
	step, code = failureDetails(wrapped)
	assert.Equal(t, "generate-report", step)
	assert.Equal(t, 2, code)
}

func TestBuildJob_Modes(t *testing.T) {
	a := testApp()
	a.cfg.Job.Mode = "script"
	a.cfg.Script.InstallCommand = "true"
	a.cfg.Script.ReportCommand = "true"
	assert.IsType(t, &report.ScriptJob{}, a.buildJob())

	a.cfg.Job.Mode = "native"
	a.cfg.SMTP.Host = "smtp.example.com"
	a.cfg.SMTP.Port = 587
	assert.IsType(t, &report.Generator{}, a.buildJob())
}

func TestBuildNotifier(t *testing.T) {
	a := testApp()

	n, err := a.buildNotifier()
	require.NoError(t, err)
	assert.Nil(t, n, "no notifier without a token")

	a.cfg.Telegram.Token = "123:abc"
	a.cfg.Telegram.ChatID = "not-a-number"
	_, err = a.buildNotifier()
	assert.Error(t, err)
}

func TestOnceRunHonorsTimeout(t *testing.T) {
	a := testApp()
	a.cfg.Job.Timeout = 50 * time.Millisecond
	st := newFakeRunStore()

	job := jobFunc(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Job.Timeout)
	defer cancel()
	err := a.executeRun(ctx, st, nil, job, store.TriggerManual)
	assert.Error(t, err)
}

type jobFunc func(ctx context.Context) error

func (f jobFunc) Run(ctx context.Context) error { return f(ctx) }
