// Package service implements the application services: semantic search over
// CRM entities, job enqueueing and the health surface.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
	"commandcenter/internal/port/outbound"
)

// SearchService is the vector search engine: it embeds query text through
// the gateway and runs nearest-neighbor queries against the entity store.
type SearchService struct {
	gateway  outbound.EmbeddingGateway
	entities outbound.EntityStore
}

// NewSearchService creates a new SearchService instance.
func NewSearchService(gateway outbound.EmbeddingGateway, entities outbound.EntityStore) *SearchService {
	if gateway == nil {
		panic("gateway cannot be nil")
	}
	if entities == nil {
		panic("entities cannot be nil")
	}
	return &SearchService{gateway: gateway, entities: entities}
}

// Search embeds the query text and returns entities whose similarity
// strictly exceeds the threshold, ordered by descending similarity.
// Entities without a stored vector never appear. An empty result is not an
// error.
func (s *SearchService) Search(
	ctx context.Context,
	queryText string,
	opts search.Options,
) ([]search.Result[entity.Entity], error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, domain.NewValidation("query text cannot be empty", nil)
	}
	opts.ApplyDefaults()

	vector, err := s.gateway.Generate(ctx, queryText)
	if err != nil {
		return nil, err
	}

	return s.neighbors(ctx, vector.Values, outbound.NeighborQuery{
		Limit:         opts.Limit,
		Offset:        opts.Offset,
		MinSimilarity: opts.MinSimilarity,
	})
}

// FindSimilar returns entities similar to the given one, using its stored
// vector as the query and excluding the entity itself. Fails with the
// store's not-found classification when the entity or its vector is absent.
func (s *SearchService) FindSimilar(
	ctx context.Context,
	entityID uuid.UUID,
	opts search.Options,
) ([]search.Result[entity.Entity], error) {
	if entityID == uuid.Nil {
		return nil, domain.NewValidation("entity id cannot be empty", nil)
	}
	opts.ApplyDefaults()

	vector, err := s.entities.GetVector(ctx, entityID)
	if err != nil {
		return nil, err
	}

	return s.neighbors(ctx, vector.Values, outbound.NeighborQuery{
		Limit:         opts.Limit,
		Offset:        opts.Offset,
		MinSimilarity: opts.MinSimilarity,
		ExcludeID:     entityID,
	})
}

func (s *SearchService) neighbors(
	ctx context.Context,
	queryVector []float64,
	query outbound.NeighborQuery,
) ([]search.Result[entity.Entity], error) {
	matches, err := s.entities.NearestNeighbors(ctx, queryVector, query)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result[entity.Entity], 0, len(matches))
	for _, m := range matches {
		results = append(results, search.Result[entity.Entity]{
			Item:            m.Entity,
			SimilarityScore: m.Similarity,
		})
	}
	return results, nil
}

// BackfillOutcome reports one backfill batch.
type BackfillOutcome struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Backfill embeds up to batchSize entities that lack a vector. Per-entity
// failures are counted and logged, never fatal to the batch. A second run
// over a fully embedded set processes zero entities.
func (s *SearchService) Backfill(ctx context.Context, batchSize int) (BackfillOutcome, error) {
	if batchSize <= 0 {
		return BackfillOutcome{}, domain.NewValidation("batch size must be positive", nil)
	}

	missing, err := s.entities.ListMissingVector(ctx, batchSize)
	if err != nil {
		return BackfillOutcome{}, err
	}

	var outcome BackfillOutcome
	for _, e := range missing {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		if err := s.backfillOne(ctx, e); err != nil {
			outcome.Failed++
			slogger.Warn(ctx, "Backfill failed for entity", slogger.Fields{
				"entity_id": e.ID.String(),
				"kind":      string(e.Kind),
				"error":     err.Error(),
			})
			continue
		}
		outcome.Processed++
	}

	slogger.Info(ctx, "Backfill batch finished", slogger.Fields{
		"processed": outcome.Processed,
		"failed":    outcome.Failed,
	})
	return outcome, nil
}

func (s *SearchService) backfillOne(ctx context.Context, e entity.Entity) error {
	text := e.EmbeddingText()
	if text == "" {
		return domain.NewValidation("entity has no text to embed", nil)
	}

	vector, err := s.gateway.Generate(ctx, text)
	if err != nil {
		return err
	}
	return s.entities.SetVector(ctx, e.ID, vector)
}
