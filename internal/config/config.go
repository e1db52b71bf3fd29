package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"reportd/internal/secrets"
)

// DefaultSchedule fires every Monday at 08:00 in the configured timezone.
const DefaultSchedule = "0 8 * * 1"

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`

	Job struct {
		// Schedule is a 5-field cron expression, read once at startup.
		Schedule string `validate:"required"`
		// Timezone is an IANA name for schedule evaluation; empty means local.
		Timezone string
		// Mode selects the report job implementation.
		Mode string `validate:"required,oneof=native script"`
		// Timeout bounds a single run. Zero means no timeout.
		Timeout time.Duration
	}

	// Email holds secret references, resolved at execution time.
	// Values are never stored in configuration directly.
	Email struct {
		SourceRef    string `validate:"required"`
		PasswordRef  string `validate:"required"`
		RecipientRef string `validate:"required"`
	}

	SMTP struct {
		Host string `validate:"required"`
		Port int    `validate:"required,min=1,max=65535"`
	}

	// Script configures script mode: the two shell stages of the
	// original pipeline.
	Script struct {
		InstallCommand string `validate:"required"`
		ReportCommand  string `validate:"required"`
	}

	Report struct {
		// AWSConfigFile is the shared config listing profiles and regions.
		AWSConfigFile string `validate:"required"`
		// OutputFile is the workbook written before mailing.
		OutputFile string `validate:"required"`
	}

	Storage struct {
		// PostgresDSN selects PostgreSQL when set; otherwise SQLite.
		PostgresDSN string
		SQLitePath  string `validate:"required"`
	}

	HTTP struct {
		// Addr of the status API; empty disables it.
		Addr string
	}

	Telegram struct {
		Token  string
		ChatID string
	}

	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// scheduleParser matches the scheduler's accepted syntax: 5-field cron
// plus descriptors.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads configuration from environment variables and an optional
// .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")

	c.Job.Schedule = getenv("REPORT_SCHEDULE", DefaultSchedule)
	c.Job.Timezone = os.Getenv("SCHEDULE_TZ")
	c.Job.Mode = strings.ToLower(getenv("REPORT_MODE", "native"))
	if v := os.Getenv("JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("JOB_TIMEOUT: %w", err)
		}
		if d < 0 {
			return Config{}, errors.New("JOB_TIMEOUT must not be negative")
		}
		c.Job.Timeout = d
	}

	c.Email.SourceRef = getenv("EMAIL_SOURCE_REF", "env:EMAIL_SOURCE")
	c.Email.PasswordRef = getenv("EMAIL_PASSWORD_REF", "env:EMAIL_PASSWORD")
	c.Email.RecipientRef = getenv("EMAIL_RECIPIENT_REF", "env:EMAIL_RECIPIENT")

	c.SMTP.Host = getenv("SMTP_HOST", "smtp.gmail.com")
	c.SMTP.Port = 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &c.SMTP.Port); err != nil {
			return Config{}, fmt.Errorf("SMTP_PORT: %w", err)
		}
	}

	c.Script.InstallCommand = getenv("SCRIPT_INSTALL_CMD", "pip install boto3 pandas python-dotenv")
	c.Script.ReportCommand = getenv("SCRIPT_REPORT_CMD", "python generate_report.py")

	c.Report.AWSConfigFile = getenv("AWS_CONFIG_FILE", defaultAWSConfigPath())
	c.Report.OutputFile = getenv("REPORT_OUTPUT", "ec2_metrics_report.xlsx")

	c.Storage.PostgresDSN = os.Getenv("DATABASE_URL")
	c.Storage.SQLitePath = getenv("DB_PATH", "data/reportd.db")

	c.HTTP.Addr = os.Getenv("HTTP_ADDR")

	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")

	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/reportd.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if err := c.check(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// check runs the cross-field validations the struct tags cannot express.
func (c Config) check() error {
	if _, err := scheduleParser.Parse(c.Job.Schedule); err != nil {
		return fmt.Errorf("REPORT_SCHEDULE %q is not a valid cron expression: %w", c.Job.Schedule, err)
	}
	if c.Job.Timezone != "" {
		if _, err := time.LoadLocation(c.Job.Timezone); err != nil {
			return fmt.Errorf("SCHEDULE_TZ: %w", err)
		}
	}
	for name, ref := range map[string]string{
		"EMAIL_SOURCE_REF":    c.Email.SourceRef,
		"EMAIL_PASSWORD_REF":  c.Email.PasswordRef,
		"EMAIL_RECIPIENT_REF": c.Email.RecipientRef,
	} {
		if err := secrets.ValidateRef(ref); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// Location returns the schedule evaluation timezone.
func (c Config) Location() *time.Location {
	if c.Job.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Job.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func defaultAWSConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aws/config"
	}
	return home + "/.aws/config"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
