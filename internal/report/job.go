package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reportd/internal/adapter/email"
	"reportd/internal/pipeline"
)

// Job failure classification: which stage of the report job failed.
var (
	// ErrDependencyInstall marks a failure of the dependency
	// installation stage.
	ErrDependencyInstall = errors.New("dependency install failed")
	// ErrReportScript marks a failure of the report generation stage.
	ErrReportScript = errors.New("report generation failed")
)

const (
	emailSubject = "EC2 Metrics Report"
	emailBody    = "Please find attached the EC2 metrics report."
)

// Environment variable names the report script consumes.
const (
	envEmailSource    = "EMAIL_SOURCE"
	envEmailPassword  = "EMAIL_PASSWORD"
	envEmailRecipient = "EMAIL_RECIPIENT"
)

// SecretResolver resolves secret references to values.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Mailer delivers a message authenticated with the given password.
type Mailer interface {
	Send(ctx context.Context, msg email.Message, password string) error
}

// CredentialRefs are the secret references for the email bindings.
type CredentialRefs struct {
	Source    string
	Password  string
	Recipient string
}

// Credentials are the resolved email bindings. All three are non-empty.
type Credentials struct {
	Source    string
	Password  string
	Recipient string
}

// ResolveCredentials resolves all three references. It fails when any
// reference cannot be resolved or resolves empty.
func ResolveCredentials(ctx context.Context, r SecretResolver, refs CredentialRefs) (Credentials, error) {
	var creds Credentials
	var err error
	if creds.Source, err = r.Resolve(ctx, refs.Source); err != nil {
		return Credentials{}, fmt.Errorf("email source: %w", err)
	}
	if creds.Password, err = r.Resolve(ctx, refs.Password); err != nil {
		return Credentials{}, fmt.Errorf("email password: %w", err)
	}
	if creds.Recipient, err = r.Resolve(ctx, refs.Recipient); err != nil {
		return Credentials{}, fmt.Errorf("email recipient: %w", err)
	}
	return creds, nil
}

// Generator is the native report job: collect, export, mail, all in
// one self-contained unit with no ambient state shared between stages.
type Generator struct {
	collector  *Collector
	mailer     Mailer
	resolver   SecretResolver
	refs       CredentialRefs
	outputFile string
	log        *slog.Logger
}

// NewGenerator wires the native report job.
func NewGenerator(collector *Collector, mailer Mailer, resolver SecretResolver, refs CredentialRefs, outputFile string, log *slog.Logger) *Generator {
	return &Generator{
		collector:  collector,
		mailer:     mailer,
		resolver:   resolver,
		refs:       refs,
		outputFile: outputFile,
		log:        log,
	}
}

// Run executes one report cycle. Credentials are resolved fresh on
// every run so rotated secrets apply without a restart.
func (g *Generator) Run(ctx context.Context) error {
	creds, err := ResolveCredentials(ctx, g.resolver, g.refs)
	if err != nil {
		return err
	}

	rows, err := g.collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReportScript, err)
	}
	g.log.Info("metrics collected", slog.Int("rows", len(rows)))

	if err := WriteWorkbook(rows, g.outputFile); err != nil {
		return fmt.Errorf("%w: %w", ErrReportScript, err)
	}
	g.log.Info("workbook written", slog.String("file", g.outputFile))

	err = g.mailer.Send(ctx, email.Message{
		From:       creds.Source,
		To:         creds.Recipient,
		Subject:    emailSubject,
		Body:       emailBody,
		Attachment: g.outputFile,
	}, creds.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReportScript, err)
	}
	return nil
}

// ScriptJob is the legacy two-stage pipeline: install the Python
// dependencies, then run the external report script. The second stage
// relies on the package environment the first stage leaves behind;
// that coupling is inherent to the legacy design and kept as-is here.
type ScriptJob struct {
	runner     *pipeline.Runner
	resolver   SecretResolver
	refs       CredentialRefs
	installCmd string
	reportCmd  string
}

// NewScriptJob wires the legacy script pipeline.
func NewScriptJob(runner *pipeline.Runner, resolver SecretResolver, refs CredentialRefs, installCmd, reportCmd string) *ScriptJob {
	return &ScriptJob{
		runner:     runner,
		resolver:   resolver,
		refs:       refs,
		installCmd: installCmd,
		reportCmd:  reportCmd,
	}
}

// Run executes both stages in order. A failure in stage one aborts the
// job before stage two starts; neither stage is retried.
func (j *ScriptJob) Run(ctx context.Context) error {
	creds, err := ResolveCredentials(ctx, j.resolver, j.refs)
	if err != nil {
		return err
	}

	// Exactly the three bindings the script contract names.
	env := map[string]string{
		envEmailSource:    creds.Source,
		envEmailPassword:  creds.Password,
		envEmailRecipient: creds.Recipient,
	}

	_, err = j.runner.Run(ctx, pipeline.Job{
		Name: "weekly-report",
		Steps: []pipeline.Step{
			{Name: "install-deps", Command: j.installCmd, Env: env},
			{Name: "generate-report", Command: j.reportCmd, Env: env},
		},
	})
	if err != nil {
		return classifyStepError(err)
	}
	return nil
}

// classifyStepError maps a pipeline failure onto the two stage error
// kinds the job exposes.
func classifyStepError(err error) error {
	var stepErr *pipeline.StepError
	if !errors.As(err, &stepErr) {
		return err
	}
	switch stepErr.Index {
	case 0:
		return fmt.Errorf("%w: %w", ErrDependencyInstall, err)
	default:
		return fmt.Errorf("%w: %w", ErrReportScript, err)
	}
}
