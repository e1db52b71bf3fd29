// Package app wires configuration, storage, the report job and the
// scheduler into the running service.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"reportd/internal/adapter/email"
	"reportd/internal/adapter/external/aws"
	"reportd/internal/adapter/httpapi"
	"reportd/internal/adapter/scheduler"
	"reportd/internal/adapter/telegram"
	"reportd/internal/config"
	"reportd/internal/pipeline"
	"reportd/internal/platform/logger"
	"reportd/internal/report"
	"reportd/internal/secrets"
	"reportd/internal/store"
)

const jobName = "weekly-report"

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "reportd",
	})
	return &App{cfg: cfg, log: log}, nil
}

// jobRunner is one execution of the report job.
type jobRunner interface {
	Run(ctx context.Context) error
}

// Run starts the service. With once set the job executes a single time
// in the foreground instead of on its schedule.
func (a *App) Run(once bool) error {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting",
		slog.String("mode", a.cfg.Job.Mode),
		slog.String("schedule", a.cfg.Job.Schedule))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	notifier, err := a.buildNotifier()
	if err != nil {
		return err
	}

	job := a.buildJob()
	runOnce := func(ctx context.Context, trigger string) error {
		return a.executeRun(ctx, st, notifier, job, trigger)
	}

	if once {
		runCtx := ctx
		if a.cfg.Job.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, a.cfg.Job.Timeout)
			defer cancel()
		}
		return runOnce(runCtx, store.TriggerManual)
	}

	sched := scheduler.NewWithContext(ctx, scheduler.Config{
		Logger:   a.log,
		Location: a.cfg.Location(),
		JobHooks: scheduler.JobHooks{
			OnJobFinish: func(name string, duration time.Duration, err error) {
				a.log.Info("job finished",
					slog.String("job", name),
					slog.Duration("duration", duration),
					slog.Bool("ok", err == nil))
			},
		},
	})
	jobID, err := sched.AddJob(a.cfg.Job.Schedule,
		func(ctx context.Context) error { return runOnce(ctx, store.TriggerSchedule) },
		scheduler.JobOptions{
			Name:    jobName,
			Timeout: a.cfg.Job.Timeout,
			// A slow run must not stack a second one behind it.
			OverlapPolicy: scheduler.SkipIfRunning,
		})
	if err != nil {
		return err
	}
	sched.Start()
	a.log.Info("schedule active", slog.Time("next_fire", sched.NextFire(jobID)))

	if a.cfg.HTTP.Addr != "" {
		api := httpapi.New(st, a.scheduleInfo(sched, jobID), a.log)
		go func() {
			if err := api.Run(ctx, a.cfg.HTTP.Addr); err != nil {
				a.log.Error("status api", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	a.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.StopContext(stopCtx)
}

// executeRun runs the job once and records the outcome. The returned
// error is the job error; persistence problems are logged only.
func (a *App) executeRun(ctx context.Context, st store.RunStore, notifier *telegram.Notifier, job jobRunner, trigger string) error {
	run := store.NewRun(jobName, a.cfg.Job.Mode, trigger, time.Now())
	log := a.log.With(slog.String("run_id", run.ID), slog.String("trigger", trigger))

	if err := st.Begin(ctx, run); err != nil {
		log.Error("record run start", slog.Any("error", err))
	}
	log.Info("run started")

	runErr := job.Run(ctx)

	// The job context may already be expired here; outcome writes get
	// their own deadline.
	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if runErr == nil {
		if err := st.Finish(finishCtx, run.ID, store.SuccessOutcome(time.Now())); err != nil {
			log.Error("record run outcome", slog.Any("error", err))
		}
		log.Info("run succeeded")
		return nil
	}

	failedStep, exitCode := failureDetails(runErr)
	outcome := store.FailureOutcome(time.Now(), failedStep, exitCode, runErr)
	if err := st.Finish(finishCtx, run.ID, outcome); err != nil {
		log.Error("record run outcome", slog.Any("error", err))
	}
	log.Error("run failed", slog.Any("error", runErr))

	if notifier != nil {
		notifier.NotifyFailure(finishCtx, jobName, run.StartedAt, runErr)
	}
	return runErr
}

func failureDetails(err error) (failedStep string, exitCode int) {
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Name, stepErr.ExitCode
	}
	return "", -1
}

func (a *App) openStore(ctx context.Context) (store.RunStore, error) {
	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		a.log.Info("using postgres run store")
		return store.OpenPostgres(ctx, dsn)
	}
	a.log.Info("using sqlite run store", slog.String("path", a.cfg.Storage.SQLitePath))
	return store.OpenSQLite(ctx, a.cfg.Storage.SQLitePath)
}

func (a *App) buildNotifier() (*telegram.Notifier, error) {
	if a.cfg.Telegram.Token == "" {
		return nil, nil
	}
	chatID, err := strconv.ParseInt(a.cfg.Telegram.ChatID, 10, 64)
	if err != nil {
		return nil, errors.New("TELEGRAM_CHAT_ID must be an integer")
	}
	return telegram.New(a.cfg.Telegram.Token, chatID, a.log)
}

func (a *App) buildJob() jobRunner {
	resolver := secrets.NewResolver()
	refs := report.CredentialRefs{
		Source:    a.cfg.Email.SourceRef,
		Password:  a.cfg.Email.PasswordRef,
		Recipient: a.cfg.Email.RecipientRef,
	}

	if a.cfg.Job.Mode == "script" {
		runner := pipeline.NewRunner(a.log)
		return report.NewScriptJob(runner, resolver, refs,
			a.cfg.Script.InstallCommand, a.cfg.Script.ReportCommand)
	}

	collector := report.NewCollector(a.cfg.Report.AWSConfigFile, aws.DefaultClientFactory, a.log)
	mailer := email.NewSender(a.cfg.SMTP.Host, a.cfg.SMTP.Port, a.log)
	return report.NewGenerator(collector, mailer, resolver, refs, a.cfg.Report.OutputFile, a.log)
}

func (a *App) scheduleInfo(sched *scheduler.Scheduler, id scheduler.JobID) httpapi.ScheduleFunc {
	return func() (httpapi.ScheduleInfo, error) {
		return httpapi.ScheduleInfo{
			Spec:     a.cfg.Job.Schedule,
			Timezone: a.cfg.Location().String(),
			Mode:     a.cfg.Job.Mode,
			NextFire: sched.NextFire(id),
		}, nil
	}
}
