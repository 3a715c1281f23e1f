package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("database.host", "localhost")
	v.Set("database.port", 5432)
	v.Set("database.user", "commandcenter")
	v.Set("database.password", "secret")
	v.Set("database.name", "commandcenter")
	v.Set("database.sslmode", "disable")
	v.Set("worker.defaults.concurrency", 4)
	v.Set("worker.defaults.lease_duration", "30s")
	return v
}

// TestNew_ValidConfig verifies the viper decode path end to end.
func TestNew_ValidConfig(t *testing.T) {
	v := validViper()
	v.Set("worker.queues.transcription.concurrency", 2)
	v.Set("worker.queues.transcription.rate_limit.max_jobs", 10)
	v.Set("worker.queues.transcription.rate_limit.window", "1m")
	v.Set("nats.url", "nats://localhost:4222")
	v.Set("nats.enabled", true)
	v.Set("embeddings.voyage.api_key", "vk-test")

	cfg := New(v)

	assert.Equal(t, "commandcenter", cfg.Database.User)
	assert.Equal(t, 30*time.Second, cfg.Worker.Defaults.LeaseDuration)
	assert.Equal(t, 10, cfg.Worker.Queues["transcription"].RateLimit.MaxJobs)
	assert.True(t, cfg.NATS.Enabled)
	assert.True(t, cfg.Embeddings.Voyage.Configured())
	assert.False(t, cfg.Embeddings.OpenAI.Configured())
}

// TestNew_InvalidConfigPanics verifies that validation failures stop startup.
func TestNew_InvalidConfigPanics(t *testing.T) {
	v := validViper()
	v.Set("database.user", "")

	assert.Panics(t, func() { New(v) })
}

// TestValidate covers the individual validation rules.
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Host: "localhost",
				Port: 5432,
				User: "cc",
				Name: "cc",
			},
			Worker: WorkerConfig{
				Defaults: WorkerQueueConfig{Concurrency: 1, LeaseDuration: time.Second},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(_ *Config) {}, ""},
		{"missing user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"missing name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"bad port", func(c *Config) { c.Database.Port = 70000 }, "database.port"},
		{"zero concurrency", func(c *Config) { c.Worker.Defaults.Concurrency = 0 }, "concurrency"},
		{"zero lease", func(c *Config) { c.Worker.Defaults.LeaseDuration = 0 }, "lease_duration"},
		{
			"rate limit without window",
			func(c *Config) {
				c.Worker.Queues = map[string]WorkerQueueConfig{
					"sync": {RateLimit: RateLimitConfig{MaxJobs: 5}},
				}
			},
			"rate_limit.window",
		},
		{
			"default rate limit without window",
			func(c *Config) { c.Worker.Defaults.RateLimit = RateLimitConfig{MaxJobs: 5} },
			"rate_limit.window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestWorkerConfig_ForQueue verifies per-queue overrides fall back to
// defaults field by field.
func TestWorkerConfig_ForQueue(t *testing.T) {
	w := WorkerConfig{
		Defaults: WorkerQueueConfig{
			Concurrency:   4,
			LeaseDuration: 30 * time.Second,
		},
		Queues: map[string]WorkerQueueConfig{
			"transcription": {
				Concurrency: 2,
				RateLimit:   RateLimitConfig{MaxJobs: 10, Window: time.Minute},
			},
		},
	}

	tr := w.ForQueue("transcription")
	assert.Equal(t, 2, tr.Concurrency)
	assert.Equal(t, 30*time.Second, tr.LeaseDuration, "unset override falls back")
	assert.Equal(t, 10, tr.RateLimit.MaxJobs)

	other := w.ForQueue("notification")
	assert.Equal(t, 4, other.Concurrency)
	assert.Zero(t, other.RateLimit.MaxJobs)
}

// TestDatabaseConfig_DSN verifies connection string assembly.
func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "cc",
		Password: "secret",
		Name:     "commandcenter",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=cc password=secret dbname=commandcenter sslmode=require",
		d.DSN(),
	)
}
