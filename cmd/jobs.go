package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"commandcenter/internal/adapter/outbound/entitystore"
	"commandcenter/internal/adapter/outbound/jobstore"
	"commandcenter/internal/application/service"
	"commandcenter/internal/domain/job"
)

// newEnqueueCmd creates the enqueue command.
func newEnqueueCmd() *cobra.Command {
	var (
		priority int
		jobID    string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <queue> <payload-json>",
		Short: "Enqueue a job",
		Long: `Enqueue a job on the given queue with a JSON payload.

The job type matches the queue name. Passing --job-id makes the call
idempotent: re-running with the same ID never creates a second job.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runEnqueue(args[0], args[1], priority, jobID)
		},
	}

	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority (higher runs first)")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Explicit job ID for idempotent enqueue")
	return cmd
}

func runEnqueue(queueName, payload string, priority int, jobID string) error {
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	opts := job.Options{Priority: priority}
	if jobID != "" {
		id, err := uuid.Parse(jobID)
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", jobID, err)
		}
		opts.JobID = id
	}

	ctx := context.Background()
	svc, cleanup, err := buildJobService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	id, err := svc.Enqueue(ctx, queueName, job.Type(queueName), json.RawMessage(payload), opts)
	if err != nil {
		return err
	}

	fmt.Println(id.String())
	return nil
}

// newJobStatusCmd creates the job status command.
func newJobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runJobStatus(args[0])
		},
	}
}

func runJobStatus(rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", rawID, err)
	}

	ctx := context.Background()
	svc, cleanup, err := buildJobService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := svc.Status(ctx, id)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(status)
}

// buildJobService wires a JobService over the Postgres store for one-shot
// CLI use.
func buildJobService(ctx context.Context) (*service.JobService, func(), error) {
	cfg := GetConfig()

	definitions, err := loadQueueDefinitions(cfg)
	if err != nil {
		return nil, nil, err
	}
	defs := make([]job.QueueDefinition, 0, len(definitions))
	for _, def := range definitions {
		defs = append(defs, def)
	}

	dbPool, err := entitystore.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := jobstore.NewPostgresJobStore(dbPool, defs)
	return service.NewJobService(store), dbPool.Close, nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern.
	rootCmd.AddCommand(newEnqueueCmd())
	rootCmd.AddCommand(newJobStatusCmd())
}
