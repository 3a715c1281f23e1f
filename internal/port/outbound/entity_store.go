package outbound

import (
	"context"

	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/search"

	"github.com/google/uuid"
)

// NeighborQuery parameterizes a nearest-neighbor search against the entity
// store. Results are ordered by ascending cosine distance; entities without
// a stored vector are excluded.
type NeighborQuery struct {
	// Limit caps the number of returned matches.
	Limit int
	// Offset skips matches for pagination.
	Offset int
	// MinSimilarity excludes matches whose similarity (1 - distance) does
	// not strictly exceed this threshold.
	MinSimilarity float64
	// ExcludeID removes one entity from the results, used by find-similar to
	// drop the source entity.
	ExcludeID uuid.UUID
}

// EntityMatch is one nearest-neighbor hit.
type EntityMatch struct {
	Entity     entity.Entity
	Similarity float64
	Distance   float64
}

// EntityStore persists CRM entities and their embedding vectors. Vectors
// live as a column on the owning entity's row with a companion
// nearest-neighbor index.
type EntityStore interface {
	// GetEntity returns the entity or domain.ErrEntityNotFound.
	GetEntity(ctx context.Context, id uuid.UUID) (*entity.Entity, error)

	// GetVector returns the entity's stored vector or domain.ErrVectorMissing
	// when the entity exists without one.
	GetVector(ctx context.Context, id uuid.UUID) (*search.EmbeddingVector, error)

	// SetVector attaches a vector to the entity, replacing any previous one.
	SetVector(ctx context.Context, id uuid.UUID, vector *search.EmbeddingVector) error

	// NearestNeighbors runs a similarity query ordered by ascending distance,
	// ties broken by ascending entity ID for deterministic output.
	NearestNeighbors(ctx context.Context, queryVector []float64, query NeighborQuery) ([]EntityMatch, error)

	// ListMissingVector returns up to limit entities lacking a vector, oldest
	// first, for backfill.
	ListMissingVector(ctx context.Context, limit int) ([]entity.Entity, error)
}
