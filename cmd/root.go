// Package cmd provides the command-line interface for the command center.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "commandcenter",
	Short: "CRM command center job and search core",
	Long: `Command Center runs the asynchronous backbone of the CRM: durable job
queues for transcription, embedding, notification and sync work, plus
semantic search over contacts and call records.

The system supports:
- Durable job queues with leases, retries and backoff (PostgreSQL)
- Per-queue worker pools with concurrency and rate limits
- Embedding generation with provider fallback (Voyage, OpenAI)
- Vector similarity search with PostgreSQL/pgvector
- Job lifecycle events over NATS JetStream`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern.
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CRMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; defaults and environment apply.
	}

	cfg = config.New(v)

	slogger.Configure(slogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.defaults.concurrency", 4)
	v.SetDefault("worker.defaults.lease_duration", "30s")
	v.SetDefault("worker.poll_interval", "500ms")
	v.SetDefault("worker.stall_check_interval", "30s")
	v.SetDefault("worker.retention_interval", "5m")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "commandcenter")
	v.SetDefault("database.name", "commandcenter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.enabled", false)

	// Embedding defaults
	v.SetDefault("embeddings.max_input_chars", 8000)
	v.SetDefault("embeddings.use_deterministic", false)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
