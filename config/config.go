// Package config loads and validates the application configuration from
// a YAML file. LoadConfig applies defaults for optional fields and
// rejects configurations that cannot run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan/activities"
)

const (
	// Default server settings
	defaultListenAddr = ":8080"

	// Default dispatcher settings
	defaultWorkers      = 4
	defaultPollInterval = 2 * time.Second

	// Default OpenAI settings
	defaultModel = "gpt-4o-mini"

	// Default monitoring settings
	defaultMonitoringMode = "scrape"
	defaultMetricsPrefix  = "planweaver"
	defaultJobName        = "planweaver"
	defaultPushTimeout    = 30 * time.Second

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig                `yaml:"server"`
	Database   DatabaseConfig              `yaml:"database"`
	Dispatcher DispatcherConfig            `yaml:"dispatcher"`
	Retry      RetryConfig                 `yaml:"retry"`
	OpenAI     OpenAIConfig                `yaml:"openai"`
	Recipes    RecipesConfig               `yaml:"recipes"`
	Reminders  activities.ReminderSchedule `yaml:"reminders"`
	Schedules  []ScheduleConfig            `yaml:"schedules"`
	Monitoring MonitoringConfig            `yaml:"monitoring"`
	Logging    logging.Config              `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig holds the SQLite database paths
type DatabaseConfig struct {
	// InstancePath is the workflow instance database. Empty means
	// in-memory, which loses history on restart.
	InstancePath string `yaml:"instance_path"`
	// PlanPath is the meal plan and profile database. Empty means
	// in-memory.
	PlanPath string `yaml:"plan_path"`
}

// DispatcherConfig bounds the worker pool
type DispatcherConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RetryConfig overrides the per-class retry policies. Zero fields fall
// back to the built-in policies.
type RetryConfig struct {
	Network engine.RetryPolicy `yaml:"network"`
	Compute engine.RetryPolicy `yaml:"compute"`
}

// OpenAIConfig holds the LLM client settings. An empty API key disables
// the LLM; composition then always uses the rule-based fallback.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RecipesConfig locates the recipe catalog
type RecipesConfig struct {
	CatalogPath string `yaml:"catalog_path"`
}

// ScheduleConfig is one recurring plan-generation trigger
type ScheduleConfig struct {
	// Cron follows standard 5-field cron format.
	Cron   string `yaml:"cron"`
	UserID string `yaml:"user_id"`
	// Regenerate overwrites an existing plan for the target week.
	Regenerate bool `yaml:"regenerate"`
}

// MonitoringConfig selects how metrics leave the process
type MonitoringConfig struct {
	// Mode is "scrape" (Prometheus /metrics endpoint) or "push"
	// (remote write).
	Mode          string        `yaml:"mode"`
	PushURL       string        `yaml:"push_url"`
	MetricsPrefix string        `yaml:"metrics_prefix"`
	JobName       string        `yaml:"jobname"`
	PushTimeout   time.Duration `yaml:"push_timeout"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Monitoring.Mode != "scrape" && c.Monitoring.Mode != "push" {
		return fmt.Errorf("monitoring mode must be scrape or push, got %q", c.Monitoring.Mode)
	}
	if c.Monitoring.Mode == "push" && c.Monitoring.PushURL == "" {
		return fmt.Errorf("monitoring push_url is required in push mode")
	}
	if c.Dispatcher.Workers < 0 {
		return fmt.Errorf("dispatcher workers must not be negative")
	}
	for i, s := range c.Schedules {
		if s.Cron == "" {
			return fmt.Errorf("schedule %d: cron is required", i)
		}
		if s.UserID == "" {
			return fmt.Errorf("schedule %d: user_id is required", i)
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = defaultWorkers
	}
	if c.Dispatcher.PollInterval == 0 {
		c.Dispatcher.PollInterval = defaultPollInterval
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultModel
	}
	if c.Reminders == (activities.ReminderSchedule{}) {
		c.Reminders = activities.DefaultReminderSchedule()
	}
	if c.Monitoring.Mode == "" {
		c.Monitoring.Mode = defaultMonitoringMode
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Monitoring.PushTimeout == 0 {
		c.Monitoring.PushTimeout = defaultPushTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// NetworkPolicy returns the configured network retry policy, or the
// built-in default when unset.
func (c *Config) NetworkPolicy() engine.RetryPolicy {
	if c.Retry.Network == (engine.RetryPolicy{}) {
		return engine.NetworkRetryPolicy()
	}
	return c.Retry.Network
}

// ComputePolicy returns the configured compute retry policy, or the
// built-in default when unset.
func (c *Config) ComputePolicy() engine.RetryPolicy {
	if c.Retry.Compute == (engine.RetryPolicy{}) {
		return engine.ComputeRetryPolicy()
	}
	return c.Retry.Compute
}

// Redacted returns a copy safe to expose over the /config endpoint.
func (c *Config) Redacted() Config {
	out := *c
	if out.OpenAI.APIKey != "" {
		out.OpenAI.APIKey = "REDACTED"
	}
	return out
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
