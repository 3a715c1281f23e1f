package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"commandcenter/internal/adapter/outbound/entitystore"
	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/application/service"
	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/search"
)

// newSearchCmd creates the one-shot semantic search command.
func newSearchCmd() *cobra.Command {
	var (
		limit         int
		offset        int
		minSimilarity float64
		similarTo     string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a semantic search over contacts and call records",
		Long: `Embed the query text and return entities ranked by cosine similarity.

With --similar-to, the stored vector of the given entity is used as the
query instead of embedding text, and the entity itself is excluded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runSearch(args, similarTo, search.Options{
				Limit:         limit,
				Offset:        offset,
				MinSimilarity: minSimilarity,
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", search.DefaultMinSimilarity,
		"Results must strictly exceed this similarity")
	cmd.Flags().StringVar(&similarTo, "similar-to", "", "Entity ID to find similar entities for")

	return cmd
}

func runSearch(args []string, similarTo string, opts search.Options) error {
	ctx := context.Background()
	svc, cleanup, err := buildSearchService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var results []search.Result[entity.Entity]
	switch {
	case similarTo != "":
		entityID, err := uuid.Parse(similarTo)
		if err != nil {
			return fmt.Errorf("invalid entity id %q: %w", similarTo, err)
		}
		results, err = svc.FindSimilar(ctx, entityID, opts)
		if err != nil {
			return err
		}
	case len(args) == 1:
		results, err = svc.Search(ctx, args[0], opts)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either a query argument or --similar-to is required")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

// newBackfillCmd creates the embedding backfill command.
func newBackfillCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Generate embeddings for entities that have none",
		Long: `Scan for entities without a stored vector, oldest first, embed their
text and store the result. Runs one batch and exits; schedule it for
continuous catch-up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runBackfill(batchSize)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Maximum entities to process in this run")
	return cmd
}

func runBackfill(batchSize int) error {
	ctx := context.Background()
	svc, cleanup, err := buildSearchService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, err := svc.Backfill(ctx, batchSize)
	if err != nil {
		return err
	}

	slogger.Info(ctx, "Backfill run finished", slogger.Fields{
		"processed": outcome.Processed,
		"failed":    outcome.Failed,
	})
	fmt.Printf("processed %d, failed %d\n", outcome.Processed, outcome.Failed)
	return nil
}

// buildSearchService wires the gateway and entity store for one-shot use.
func buildSearchService(ctx context.Context) (*service.SearchService, func(), error) {
	cfg := GetConfig()

	dbPool, err := entitystore.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	entityStore, err := entitystore.NewPostgresEntityStore(dbPool)
	if err != nil {
		dbPool.Close()
		return nil, nil, err
	}

	gateway := createEmbeddingGateway(cfg)
	return service.NewSearchService(gateway, entityStore), dbPool.Close, nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern.
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newBackfillCmd())
}
