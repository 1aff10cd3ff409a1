package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeoutDuration())

	assert.Empty(t, cfg.Database.Path)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "crewdev", cfg.NATS.ClientID)

	assert.Equal(t, "http://localhost:8085", cfg.Activation.EndpointBaseURL)
	assert.Equal(t, 5, cfg.Activation.MaxRetries)
	assert.Equal(t, 1000, cfg.Activation.InitialBackoffMs)
	assert.Equal(t, 1.5, cfg.Activation.BackoffFactor)
	assert.Equal(t, 5000, cfg.Activation.MaxBackoffMs)
	assert.Equal(t, 3000, cfg.Activation.GraceDelayMs)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestActivationDurationHelpers(t *testing.T) {
	a := ActivationConfig{
		RequestTimeout:   30,
		InitialBackoffMs: 1000,
		MaxBackoffMs:     5000,
		GraceDelayMs:     3000,
	}

	assert.Equal(t, 30*time.Second, a.RequestTimeoutDuration())
	assert.Equal(t, time.Second, a.InitialBackoff())
	assert.Equal(t, 5*time.Second, a.MaxBackoff())
	assert.Equal(t, 3*time.Second, a.GraceDelay())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CREWDEV_SERVER_PORT", "9090")
	t.Setenv("CREWDEV_ACTIVATION_ENDPOINT_BASE_URL", "http://runner.internal:9000")
	t.Setenv("CREWDEV_DATABASE_PATH", "/var/lib/crewdev/state.db")
	t.Setenv("CREWDEV_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://runner.internal:9000", cfg.Activation.EndpointBaseURL)
	assert.Equal(t, "/var/lib/crewdev/state.db", cfg.Database.Path)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
server:
  port: 9191
activation:
  endpointBaseUrl: http://sessions.local:8085
  maxRetries: 2
catalog:
  workflows:
    - id: code-review
      name: Code Review
      gitUrl: https://github.com/crewdev/workflows.git
      branch: main
      path: review
      enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "http://sessions.local:8085", cfg.Activation.EndpointBaseURL)
	assert.Equal(t, 2, cfg.Activation.MaxRetries)

	require.Len(t, cfg.Catalog.Workflows, 1)
	wf := cfg.Catalog.Workflows[0]
	assert.Equal(t, "code-review", wf.ID)
	assert.Equal(t, "https://github.com/crewdev/workflows.git", wf.GitURL)
	assert.True(t, wf.Enabled)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8084},
			Activation: ActivationConfig{
				EndpointBaseURL:  "http://localhost:8085",
				MaxRetries:       5,
				InitialBackoffMs: 1000,
				BackoffFactor:    1.5,
				MaxBackoffMs:     5000,
			},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		}
	}

	require.NoError(t, validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"missing endpoint", func(c *Config) { c.Activation.EndpointBaseURL = "" }},
		{"negative retries", func(c *Config) { c.Activation.MaxRetries = -1 }},
		{"backoff factor below one", func(c *Config) { c.Activation.BackoffFactor = 0.5 }},
		{"zero backoff delay", func(c *Config) { c.Activation.InitialBackoffMs = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
