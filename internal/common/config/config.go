// Package config provides configuration management for Crewdev.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Crewdev.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Activation ActivationConfig `mapstructure:"activation"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds SQLite storage configuration. An empty path
// selects the in-memory stores (state is lost on restart).
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects
// the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// ActivationConfig holds workflow activation configuration: the remote
// activation endpoint plus the retry/backoff policy.
type ActivationConfig struct {
	// EndpointBaseURL is the base URL of the service that applies a
	// workflow to a running session.
	EndpointBaseURL string `mapstructure:"endpointBaseUrl"`

	// RequestTimeout bounds a single activation call, in seconds.
	RequestTimeout int `mapstructure:"requestTimeout"`

	// MaxRetries is the number of automatic re-attempts after a
	// retryable failure.
	MaxRetries int `mapstructure:"maxRetries"`

	// InitialBackoffMs is the delay before the first retry.
	InitialBackoffMs int `mapstructure:"initialBackoffMs"`

	// BackoffFactor multiplies the delay on each subsequent retry.
	BackoffFactor float64 `mapstructure:"backoffFactor"`

	// MaxBackoffMs caps the per-retry delay.
	MaxBackoffMs int `mapstructure:"maxBackoffMs"`

	// GraceDelayMs is the pause after a successful activation before
	// observers are notified, giving the session's backing process time
	// to restart and clone the workflow.
	GraceDelayMs int `mapstructure:"graceDelayMs"`
}

// CatalogConfig seeds the workflow catalog at startup.
type CatalogConfig struct {
	Workflows []CatalogWorkflow `mapstructure:"workflows"`
}

// CatalogWorkflow is one seeded catalog entry.
type CatalogWorkflow struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	GitURL      string `mapstructure:"gitUrl"`
	Branch      string `mapstructure:"branch"`
	Path        string `mapstructure:"path"`
	Enabled     bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns the activation request timeout as a time.Duration.
func (a *ActivationConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// InitialBackoff returns the initial retry delay as a time.Duration.
func (a *ActivationConfig) InitialBackoff() time.Duration {
	return time.Duration(a.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the retry delay cap as a time.Duration.
func (a *ActivationConfig) MaxBackoff() time.Duration {
	return time.Duration(a.MaxBackoffMs) * time.Millisecond
}

// GraceDelay returns the post-success grace period as a time.Duration.
func (a *ActivationConfig) GraceDelay() time.Duration {
	return time.Duration(a.GraceDelayMs) * time.Millisecond
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" for production environments, "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CREWDEV_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - empty path means in-memory stores
	v.SetDefault("database.path", "")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "crewdev")
	v.SetDefault("nats.maxReconnects", 10)

	// Activation defaults
	v.SetDefault("activation.endpointBaseUrl", "http://localhost:8085")
	v.SetDefault("activation.requestTimeout", 30)
	v.SetDefault("activation.maxRetries", 5)
	v.SetDefault("activation.initialBackoffMs", 1000)
	v.SetDefault("activation.backoffFactor", 1.5)
	v.SetDefault("activation.maxBackoffMs", 5000)
	v.SetDefault("activation.graceDelayMs", 3000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix CREWDEV_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/crewdev/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CREWDEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys).
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion.
	_ = v.BindEnv("activation.endpointBaseUrl", "CREWDEV_ACTIVATION_ENDPOINT_BASE_URL")
	_ = v.BindEnv("database.path", "CREWDEV_DATABASE_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/crewdev/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Activation.EndpointBaseURL == "" {
		errs = append(errs, "activation.endpointBaseUrl is required")
	}
	if cfg.Activation.MaxRetries < 0 {
		errs = append(errs, "activation.maxRetries must not be negative")
	}
	if cfg.Activation.BackoffFactor < 1 {
		errs = append(errs, "activation.backoffFactor must be at least 1")
	}
	if cfg.Activation.InitialBackoffMs <= 0 || cfg.Activation.MaxBackoffMs <= 0 {
		errs = append(errs, "activation backoff delays must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
