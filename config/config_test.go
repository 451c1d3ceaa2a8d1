package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planweaver/planweaver/engine"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad monitoring mode",
			mutate:  func(c *Config) { c.Monitoring.Mode = "statsd" },
			wantErr: "monitoring mode",
		},
		{
			name:    "push without url",
			mutate:  func(c *Config) { c.Monitoring.Mode = "push"; c.Monitoring.PushURL = "" },
			wantErr: "push_url",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Dispatcher.Workers = -1 },
			wantErr: "workers",
		},
		{
			name:    "schedule missing cron",
			mutate:  func(c *Config) { c.Schedules = []ScheduleConfig{{UserID: "u1"}} },
			wantErr: "cron is required",
		},
		{
			name:    "schedule missing user",
			mutate:  func(c *Config) { c.Schedules = []ScheduleConfig{{Cron: "0 6 * * 1"}} },
			wantErr: "user_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
	assert.Equal(t, 2*time.Second, cfg.Dispatcher.PollInterval)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "scrape", cfg.Monitoring.Mode)
	assert.Equal(t, "0 7 * * *", cfg.Reminders.Breakfast)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfig_RetryPolicies(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, engine.NetworkRetryPolicy(), cfg.NetworkPolicy())
	assert.Equal(t, engine.ComputeRetryPolicy(), cfg.ComputePolicy())

	cfg.Retry.Network = engine.RetryPolicy{MaxAttempts: 9, InitialBackoff: time.Second}
	assert.Equal(t, 9, cfg.NetworkPolicy().MaxAttempts)
}

func TestConfig_Redacted(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.OpenAI.APIKey = "sk-secret"

	redacted := cfg.Redacted()
	assert.Equal(t, "REDACTED", redacted.OpenAI.APIKey)
	assert.Equal(t, "sk-secret", cfg.OpenAI.APIKey)

	cfg.OpenAI.APIKey = ""
	assert.Empty(t, cfg.Redacted().OpenAI.APIKey)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen_addr: ":9090"
database:
  instance_path: /tmp/instances.db
  plan_path: /tmp/plans.db
dispatcher:
  workers: 8
  poll_interval: 5s
openai:
  api_key: sk-test
  model: gpt-4o
schedules:
  - cron: "0 6 * * 1"
    user_id: u1
    regenerate: true
monitoring:
  mode: push
  push_url: http://localhost:8428
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "/tmp/instances.db", cfg.Database.InstancePath)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.PollInterval)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	require.Len(t, cfg.Schedules, 1)
	assert.True(t, cfg.Schedules[0].Regenerate)
	assert.Equal(t, "push", cfg.Monitoring.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Defaults applied to untouched sections.
	assert.Equal(t, "0 17 * * *", cfg.Reminders.Dinner)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
