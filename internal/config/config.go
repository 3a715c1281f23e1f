// Package config loads and validates application configuration from Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Worker     WorkerConfig     `mapstructure:"worker"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Queues     QueuesConfig     `mapstructure:"queues"`
	Log        LogConfig        `mapstructure:"log"`
}

// RateLimitConfig bounds how many jobs a queue's workers may lease inside a
// sliding window, independent of concurrency. Used to respect external API
// quotas such as capped SMS or transcription calls per minute.
type RateLimitConfig struct {
	MaxJobs int           `mapstructure:"max_jobs"`
	Window  time.Duration `mapstructure:"window"`
}

// WorkerQueueConfig is the static per-queue worker configuration.
type WorkerQueueConfig struct {
	Concurrency   int             `mapstructure:"concurrency"`
	LeaseDuration time.Duration   `mapstructure:"lease_duration"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// WorkerConfig holds worker defaults plus per-queue overrides.
type WorkerConfig struct {
	Defaults WorkerQueueConfig            `mapstructure:"defaults"`
	Queues   map[string]WorkerQueueConfig `mapstructure:"queues"`
	// PollInterval is how long a pool sleeps when its queue is empty.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StallCheckInterval is how often stalled jobs are recovered.
	StallCheckInterval time.Duration `mapstructure:"stall_check_interval"`
	// RetentionInterval is how often retention sweeps run.
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
}

// ForQueue returns the worker config for a queue, falling back to defaults
// for unset fields.
func (w WorkerConfig) ForQueue(name string) WorkerQueueConfig {
	cfg := w.Defaults
	override, ok := w.Queues[name]
	if !ok {
		return cfg
	}
	if override.Concurrency > 0 {
		cfg.Concurrency = override.Concurrency
	}
	if override.LeaseDuration > 0 {
		cfg.LeaseDuration = override.LeaseDuration
	}
	if override.RateLimit.MaxJobs > 0 {
		cfg.RateLimit = override.RateLimit
	}
	return cfg
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS configuration for the job-event publisher.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Enabled       bool          `mapstructure:"enabled"`
}

// ProviderConfig holds one embedding provider's settings.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Configured reports whether the provider can be used.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

// EmbeddingsConfig holds the embedding provider chain: Voyage primary,
// OpenAI fallback, optional deterministic provider for development.
type EmbeddingsConfig struct {
	Voyage ProviderConfig `mapstructure:"voyage"`
	OpenAI ProviderConfig `mapstructure:"openai"`
	// UseDeterministic enables the local stub provider so the pipeline runs
	// without API keys.
	UseDeterministic bool `mapstructure:"use_deterministic"`
	// MaxInputChars is the hard input length cap; longer text is truncated,
	// never rejected.
	MaxInputChars int `mapstructure:"max_input_chars"`
}

// QueuesConfig points at an optional queue-definition override file.
type QueuesConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}

	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.Worker.Defaults.Concurrency < 1 {
		return errors.New("worker.defaults.concurrency must be at least 1")
	}

	if c.Worker.Defaults.LeaseDuration <= 0 {
		return errors.New("worker.defaults.lease_duration must be positive")
	}

	for name, q := range c.Worker.Queues {
		if q.RateLimit.MaxJobs > 0 && q.RateLimit.Window <= 0 {
			return fmt.Errorf("worker.queues.%s: rate_limit.window must be positive", name)
		}
	}

	if c.Worker.Defaults.RateLimit.MaxJobs > 0 && c.Worker.Defaults.RateLimit.Window <= 0 {
		return errors.New("worker.defaults.rate_limit.window must be positive")
	}

	return nil
}
