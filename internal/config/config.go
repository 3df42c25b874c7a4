package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/reminders"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "DAILYDIARY"
	defaultHTTPAddress       = "0.0.0.0:5000"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabaseDSN       = "dailydiary.db"
	defaultLogLevel          = "info"
	defaultTimezone          = "UTC"
	defaultAllowedOrigin     = "http://localhost:5173"
	defaultOwnerID           = "000000000000000000000001"
	defaultOwnerEmail        = "user@dailydiary.com"
	defaultReminderSchedule  = "0 20 * * *"
	defaultReminderAppURL    = "http://localhost:5173"
	defaultMailgunAPIBase    = "https://api.mailgun.net/v3"
	defaultMailgunSenderName = "Daily Diary"
	DriverSQLite             = "sqlite"
	DriverPostgres           = "postgres"
)

// AppConfig captures runtime configuration for the API server and CLI commands.
type AppConfig struct {
	HTTPAddress      string
	DatabaseDriver   string
	DatabaseDSN      string
	LogLevel         string
	Location         *time.Location
	AllowedOrigins   []string
	DefaultOwnerID   string
	DefaultEmail     string
	RemindersEnabled bool
	ReminderSchedule string
	ReminderAppURL   string
	Mailgun          MailgunConfig
}

// MailgunConfig holds the optional Mailgun transport settings.
type MailgunConfig struct {
	Domain  string
	APIKey  string
	APIBase string
	Sender  string
}

// Enabled reports whether reminders should go through Mailgun.
func (c MailgunConfig) Enabled() bool {
	return c.Domain != "" && c.APIKey != ""
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none are given.
// Missing files are ignored and variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		_ = godotenv.Load(path)
	}
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("calendar.timezone", defaultTimezone)
	configViper.SetDefault("cors.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("owner.default_id", defaultOwnerID)
	configViper.SetDefault("owner.default_email", defaultOwnerEmail)
	configViper.SetDefault("reminders.enabled", true)
	configViper.SetDefault("reminders.schedule", defaultReminderSchedule)
	configViper.SetDefault("reminders.app_url", defaultReminderAppURL)
	configViper.SetDefault("mailgun.domain", "")
	configViper.SetDefault("mailgun.api_key", "")
	configViper.SetDefault("mailgun.api_base", defaultMailgunAPIBase)
	configViper.SetDefault("mailgun.sender", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	timezone := strings.TrimSpace(configViper.GetString("calendar.timezone"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("calendar.timezone %q is invalid: %w", timezone, err)
	}

	cfg := AppConfig{
		HTTPAddress:      strings.TrimSpace(configViper.GetString("http.address")),
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:      strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:         configViper.GetString("log.level"),
		Location:         location,
		AllowedOrigins:   splitList(configViper.GetStringSlice("cors.allowed_origins")),
		DefaultOwnerID:   strings.TrimSpace(configViper.GetString("owner.default_id")),
		DefaultEmail:     strings.TrimSpace(configViper.GetString("owner.default_email")),
		RemindersEnabled: configViper.GetBool("reminders.enabled"),
		ReminderSchedule: strings.TrimSpace(configViper.GetString("reminders.schedule")),
		ReminderAppURL:   strings.TrimSpace(configViper.GetString("reminders.app_url")),
		Mailgun: MailgunConfig{
			Domain:  strings.TrimSpace(configViper.GetString("mailgun.domain")),
			APIKey:  strings.TrimSpace(configViper.GetString("mailgun.api_key")),
			APIBase: strings.TrimSpace(configViper.GetString("mailgun.api_base")),
			Sender:  strings.TrimSpace(configViper.GetString("mailgun.sender")),
		},
	}
	apiBase, err := reminders.NormalizeAPIBase(cfg.Mailgun.APIBase)
	if err != nil {
		return AppConfig{}, fmt.Errorf("mailgun.api_base: %w", err)
	}
	cfg.Mailgun.APIBase = apiBase
	if cfg.Mailgun.Sender == "" && cfg.Mailgun.Domain != "" {
		cfg.Mailgun.Sender = fmt.Sprintf("%s <no-reply@%s>", defaultMailgunSenderName, cfg.Mailgun.Domain)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.DefaultOwnerID == "" {
		return fmt.Errorf("owner.default_id is required")
	}
	if !strings.Contains(c.DefaultEmail, "@") {
		return fmt.Errorf("owner.default_email must be an email address")
	}
	if c.RemindersEnabled {
		if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
			return fmt.Errorf("reminders.schedule %q is invalid: %w", c.ReminderSchedule, err)
		}
	}
	if (c.Mailgun.Domain == "") != (c.Mailgun.APIKey == "") {
		return fmt.Errorf("mailgun.domain and mailgun.api_key must be set together")
	}
	return nil
}

// splitList accepts both list values and comma separated strings from the environment.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
