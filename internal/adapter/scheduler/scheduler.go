package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the unit of work the scheduler triggers.
type JobFunc func(ctx context.Context) error

// JobID identifies a registered cron job.
type JobID = cron.EntryID

// OverlapPolicy controls what happens when a schedule fires while the
// previous run of the same job is still active.
type OverlapPolicy int

const (
	// AllowOverlap runs fires concurrently (default).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the fire if the previous run is still active.
	SkipIfRunning
	// DelayIfRunning waits for the previous run to finish.
	DelayIfRunning
)

// JobOptions configure a registered job.
type JobOptions struct {
	// Name of the job for logging and hooks.
	Name string
	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration
	// OverlapPolicy for fires while a run is active.
	OverlapPolicy OverlapPolicy
}

// JobHooks are optional observability callbacks.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config configures the scheduler.
type Config struct {
	Logger   *slog.Logger
	Location *time.Location // schedule evaluation timezone; nil means time.Local
	JobHooks JobHooks
}

// parser accepts 5-field cron expressions (minute hour dom month dow)
// plus descriptors such as @weekly and @every.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec is a well-formed schedule expression.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Next returns the first time the schedule fires strictly after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex
}

// cronLogger adapts robfig/cron logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(keysAndValues []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return attrs
}

// Scheduler triggers registered jobs on their cron schedules.
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	hooks     JobHooks
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	startOnce sync.Once
}

// New creates a scheduler with a background parent context.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext creates a scheduler bound to the given parent context.
// Canceling the parent stops the scheduler and all running jobs.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
		),
		logger: logger,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers a job on a cron schedule. It fails when the
// expression does not parse as a 5-field cron spec or descriptor.
func (s *Scheduler) AddJob(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	wrapper := &jobWrapper{job: job, options: opts}

	id, err := s.cron.AddFunc(schedule, func() {
		s.runJobWrapper(wrapper)
	})
	if err != nil {
		s.logger.Error("failed to add cron job",
			"schedule", schedule, "name", opts.Name, "error", err)
		return 0, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.logger.Info("cron job added",
		"schedule", schedule, "name", opts.Name, "id", id)
	return id, nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(id)
	s.logger.Info("cron job removed", "id", id)
}

// NextFire returns the next scheduled fire time of a registered job,
// or the zero time when the job is unknown or the scheduler stopped.
func (s *Scheduler) NextFire(id JobID) time.Time {
	return s.cron.Entry(id).Next
}

// Start begins schedule evaluation. Idempotent.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop halts schedule evaluation and waits for running jobs. Idempotent.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext stops the scheduler, bounding the wait for running jobs
// by the context deadline. The shutdown still completes in the
// background when the deadline is exceeded.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}
	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, shutdown continues in background")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

func (s *Scheduler) runJobWrapper(wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	switch wrapper.options.OverlapPolicy {
	case SkipIfRunning:
		if !wrapper.running.TryLock() {
			s.logger.Warn("skipping fire, previous run still active", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	case DelayIfRunning:
		wrapper.running.Lock()
		defer wrapper.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(jobName)
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", jobName, "panic", r)
			if s.hooks.OnJobError != nil {
				s.hooks.OnJobError(jobName, panicErr)
			}
		}
	}()

	ctx := s.ctx
	if wrapper.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := wrapper.job(ctx)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(jobName, duration, err)
	}

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(jobName, err)
		}
		return
	}
	s.logger.Info("job completed", "name", jobName, "duration", duration)
}
