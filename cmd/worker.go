package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"commandcenter/internal/adapter/outbound/embeddings"
	"commandcenter/internal/adapter/outbound/embeddings/openai"
	"commandcenter/internal/adapter/outbound/embeddings/simple"
	"commandcenter/internal/adapter/outbound/embeddings/voyage"
	"commandcenter/internal/adapter/outbound/entitystore"
	"commandcenter/internal/adapter/outbound/jobstore"
	"commandcenter/internal/adapter/outbound/local"
	"commandcenter/internal/adapter/outbound/messaging"
	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/application/handler"
	"commandcenter/internal/application/service"
	"commandcenter/internal/application/worker"
	"commandcenter/internal/config"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

const (
	shutdownTimeout   = 30 * time.Second
	healthLogInterval = time.Minute
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the background worker pools",
		Long: `Start the worker pools that process queued jobs.

The worker service:
- Leases jobs from the PostgreSQL job store, one pool per queue
- Runs transcription, embedding, notification and sync handlers
- Applies per-queue concurrency ceilings and rate limits
- Retries transient failures with the queue's backoff policy
- Publishes job lifecycle events to NATS JetStream when enabled

Configuration is loaded from config files and environment variables.`,
		Run: func(_ *cobra.Command, _ []string) {
			runWorkerService()
		},
	}
}

func runWorkerService() {
	cfg := GetConfig()
	ctx := context.Background()

	definitions, err := loadQueueDefinitions(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to load queue definitions", slogger.Fields{"error": err.Error()})
		return
	}

	slogger.InfoNoCtx("Starting worker service", slogger.Fields{
		"queues":              len(definitions),
		"default_concurrency": cfg.Worker.Defaults.Concurrency,
	})

	dbPool, err := entitystore.NewPool(ctx, cfg.Database)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return
	}
	defer dbPool.Close()

	publisher, closePublisher := setupEventPublisher(cfg)
	defer closePublisher()

	manager, err := createPoolManager(cfg, definitions, dbPool, publisher)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create worker pools", slogger.Fields{"error": err.Error()})
		return
	}

	if err := manager.Start(ctx); err != nil {
		slogger.ErrorNoCtx("Failed to start worker pools", slogger.Fields{"error": err.Error()})
		return
	}
	slogger.InfoNoCtx("Worker service started successfully", nil)

	healthSvc := service.NewHealthService(manager, entitystore.NewHealthChecker(dbPool))
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go logHealthPeriodically(healthCtx, healthSvc)

	waitForShutdownAndStop(manager)
}

// loadQueueDefinitions returns the built-in queue set, or the override file
// when one is configured.
func loadQueueDefinitions(cfg *config.Config) (map[string]job.QueueDefinition, error) {
	defs := job.DefaultQueueDefinitions()
	if cfg.Queues.File != "" {
		loaded, err := job.LoadQueueDefinitions(cfg.Queues.File)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}

	byName := make(map[string]job.QueueDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	return byName, nil
}

// setupEventPublisher connects to NATS when enabled, otherwise falls back to
// the no-op publisher. A failed NATS connection degrades to no-op rather
// than blocking startup; the publisher reconnects in the background.
func setupEventPublisher(cfg *config.Config) (outbound.EventPublisher, func()) {
	if !cfg.NATS.Enabled {
		slogger.InfoNoCtx("Job event publishing disabled", nil)
		return messaging.NoopEventPublisher{}, func() {}
	}

	publisher, err := messaging.NewNATSEventPublisher(cfg.NATS)
	if err != nil {
		slogger.ErrorNoCtx("Invalid NATS configuration, events disabled", slogger.Fields{"error": err.Error()})
		return messaging.NoopEventPublisher{}, func() {}
	}
	if err := publisher.Connect(); err != nil {
		slogger.ErrorNoCtx("Failed to connect to NATS, events disabled", slogger.Fields{
			"error": err.Error(),
			"url":   cfg.NATS.URL,
		})
		return messaging.NoopEventPublisher{}, func() {}
	}

	slogger.InfoNoCtx("Publishing job events to NATS", slogger.Fields{"url": cfg.NATS.URL})
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			slogger.ErrorNoCtx("Error closing NATS connection", slogger.Fields{"error": err.Error()})
		}
	}
}

// createPoolManager wires stores, handlers and metrics into a pool manager.
func createPoolManager(
	cfg *config.Config,
	definitions map[string]job.QueueDefinition,
	dbPool *pgxpool.Pool,
	publisher outbound.EventPublisher,
) (*worker.PoolManager, error) {
	defs := make([]job.QueueDefinition, 0, len(definitions))
	for _, def := range definitions {
		defs = append(defs, def)
	}
	jobStore := jobstore.NewPostgresJobStore(dbPool, defs)

	entityStore, err := entitystore.NewPostgresEntityStore(dbPool)
	if err != nil {
		return nil, err
	}

	gateway := createEmbeddingGateway(cfg)

	handlers := worker.NewHandlerRegistry()
	for _, h := range buildHandlers(cfg, gateway, entityStore) {
		if err := handlers.Register(h); err != nil {
			return nil, err
		}
	}

	metrics, err := worker.NewJobMetrics()
	if err != nil {
		slogger.ErrorNoCtx("Failed to create job metrics, continuing without", slogger.Fields{"error": err.Error()})
		metrics = nil
	}

	return worker.NewPoolManager(cfg.Worker, definitions, worker.ManagerDeps{
		Store:     jobStore,
		Publisher: publisher,
		Metrics:   metrics,
		Handlers:  handlers,
		Backoffs:  worker.NewCustomBackoffRegistry(),
	})
}

// buildHandlers assembles one handler per queue. Vendor adapters for
// transcription, notification delivery and sync are the local development
// ones until real integrations are configured.
func buildHandlers(
	cfg *config.Config,
	gateway outbound.EmbeddingGateway,
	entityStore *entitystore.PostgresEntityStore,
) []inbound.JobHandler {
	channels := []outbound.NotificationChannel{
		local.NewLogChannel("sms"),
		local.NewLogChannel("email"),
		local.NewLogChannel("push"),
		local.NewLogChannel("webhook"),
	}

	return []inbound.JobHandler{
		handler.NewTranscriptionHandler(local.NewTranscriber(), entityStore),
		handler.NewEmbeddingHandler(gateway, entityStore),
		handler.NewNotificationHandler(channels),
		handler.NewSyncHandler([]outbound.SyncProvider{local.NewLoopbackSyncProvider()}),
	}
}

// createEmbeddingGateway builds the provider chain: Voyage primary, OpenAI
// fallback, with the deterministic provider either forced (dev mode) or
// appended as a last resort when no key is configured.
func createEmbeddingGateway(cfg *config.Config) *embeddings.Gateway {
	var providers []outbound.EmbeddingProvider

	if cfg.Embeddings.UseDeterministic {
		slogger.InfoNoCtx("Using deterministic embedding provider (dev mode)", nil)
		return embeddings.NewGateway(
			[]outbound.EmbeddingProvider{simple.New()},
			cfg.Embeddings.MaxInputChars,
		)
	}

	if cfg.Embeddings.Voyage.Configured() {
		client, err := voyage.NewClient(&voyage.ClientConfig{
			APIKey:  cfg.Embeddings.Voyage.APIKey,
			Model:   cfg.Embeddings.Voyage.Model,
			BaseURL: cfg.Embeddings.Voyage.BaseURL,
			Timeout: cfg.Embeddings.Voyage.Timeout,
		})
		if err != nil {
			slogger.ErrorNoCtx("Failed to create Voyage client", slogger.Fields{"error": err.Error()})
		} else {
			providers = append(providers, client)
		}
	}

	if cfg.Embeddings.OpenAI.Configured() {
		client, err := openai.NewClient(&openai.ClientConfig{
			APIKey:  cfg.Embeddings.OpenAI.APIKey,
			Model:   cfg.Embeddings.OpenAI.Model,
			BaseURL: cfg.Embeddings.OpenAI.BaseURL,
			Timeout: cfg.Embeddings.OpenAI.Timeout,
		})
		if err != nil {
			slogger.ErrorNoCtx("Failed to create OpenAI client", slogger.Fields{"error": err.Error()})
		} else {
			providers = append(providers, client)
		}
	}

	if len(providers) == 0 {
		slogger.WarnNoCtx("No embedding provider configured (CRMHUB_EMBEDDINGS_VOYAGE_API_KEY or CRMHUB_EMBEDDINGS_OPENAI_API_KEY), falling back to deterministic provider", nil)
		providers = append(providers, simple.New())
	}

	return embeddings.NewGateway(providers, cfg.Embeddings.MaxInputChars)
}

// logHealthPeriodically emits a periodic health snapshot so operators can
// watch queue depth and dependency status from the logs.
func logHealthPeriodically(ctx context.Context, svc *service.HealthService) {
	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := svc.Check(ctx)
			fields := slogger.Fields{"healthy": report.Healthy}
			for _, q := range report.Queues {
				fields["queue_"+q.QueueName] = q.Counts
			}
			for _, dep := range report.Dependencies {
				if !dep.Healthy {
					fields["dep_"+dep.Name] = dep.Detail
				}
			}
			if report.Healthy {
				slogger.Debug(ctx, "Health snapshot", fields)
			} else {
				slogger.Warn(ctx, "Health snapshot reports degraded state", fields)
			}
		}
	}
}

// waitForShutdownAndStop blocks until a shutdown signal, then drains the
// pools within the shutdown timeout.
func waitForShutdownAndStop(manager *worker.PoolManager) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, initiating graceful shutdown", slogger.Fields{
		"signal": sig.String(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := manager.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slogger.ErrorNoCtx("Error during worker shutdown", slogger.Fields{"error": err.Error()})
		return
	}
	slogger.InfoNoCtx("Worker service shutdown completed", nil)
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern.
	rootCmd.AddCommand(newWorkerCmd())
}
