package entitystore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
	"commandcenter/internal/port/outbound"
)

func newStoreWithEntity(t *testing.T, vector []float64) (*MemoryEntityStore, uuid.UUID) {
	t.Helper()
	store := NewMemoryEntityStore()
	id := uuid.New()
	store.PutEntity(entity.Entity{
		ID:        id,
		Kind:      entity.KindContact,
		Name:      "Ada Lovelace",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	if vector != nil {
		require.NoError(t, store.SetVector(context.Background(), id, &search.EmbeddingVector{
			Values:    vector,
			Dimension: len(vector),
		}))
	}
	return store, id
}

// TestMemoryEntityStore_VectorLifecycle verifies the not-found and
// vector-missing cases are distinguishable.
func TestMemoryEntityStore_VectorLifecycle(t *testing.T) {
	ctx := context.Background()
	store, id := newStoreWithEntity(t, nil)

	_, err := store.GetVector(ctx, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = store.GetVector(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVectorMissing)

	require.NoError(t, store.SetVector(ctx, id, &search.EmbeddingVector{
		Values: []float64{1, 0, 0}, Dimension: 3, ProviderName: "deterministic",
	}))

	vec, err := store.GetVector(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec.Values)
	assert.Equal(t, "deterministic", vec.ProviderName)
}

// TestMemoryEntityStore_NearestNeighborsOrdering verifies matches come back
// in descending similarity order and below-threshold matches are excluded.
func TestMemoryEntityStore_NearestNeighborsOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEntityStore()

	vectors := map[string][]float64{
		"exact":      {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
	}
	ids := make(map[string]uuid.UUID)
	for name, vec := range vectors {
		id := uuid.New()
		ids[name] = id
		store.PutEntity(entity.Entity{ID: id, Kind: entity.KindContact, Name: name})
		require.NoError(t, store.SetVector(ctx, id, &search.EmbeddingVector{Values: vec, Dimension: 3}))
	}

	matches, err := store.NearestNeighbors(ctx, []float64{1, 0, 0}, outbound.NeighborQuery{
		Limit:         10,
		MinSimilarity: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, ids["exact"], matches[0].Entity.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, ids["close"], matches[1].Entity.ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

// TestMemoryEntityStore_ThresholdIsStrict verifies a match exactly at the
// threshold is excluded.
func TestMemoryEntityStore_ThresholdIsStrict(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithEntity(t, []float64{1, 0, 0})

	matches, err := store.NearestNeighbors(ctx, []float64{1, 0, 0}, outbound.NeighborQuery{
		Limit:         10,
		MinSimilarity: 1.0,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// TestMemoryEntityStore_ExcludeID verifies find-similar can drop the source
// entity from its own results.
func TestMemoryEntityStore_ExcludeID(t *testing.T) {
	ctx := context.Background()
	store, id := newStoreWithEntity(t, []float64{1, 0, 0})

	matches, err := store.NearestNeighbors(ctx, []float64{1, 0, 0}, outbound.NeighborQuery{
		Limit:         10,
		MinSimilarity: 0,
		ExcludeID:     id,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// TestMemoryEntityStore_ListMissingVector verifies backfill candidates come
// back oldest first and capped at the limit.
func TestMemoryEntityStore_ListMissingVector(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEntityStore()

	base := time.Now()
	oldest := uuid.New()
	store.PutEntity(entity.Entity{ID: oldest, Kind: entity.KindContact, Name: "oldest", CreatedAt: base.Add(-2 * time.Hour)})
	store.PutEntity(entity.Entity{ID: uuid.New(), Kind: entity.KindContact, Name: "newer", CreatedAt: base.Add(-1 * time.Hour)})

	withVector := uuid.New()
	store.PutEntity(entity.Entity{ID: withVector, Kind: entity.KindContact, Name: "done", CreatedAt: base.Add(-3 * time.Hour)})
	require.NoError(t, store.SetVector(ctx, withVector, &search.EmbeddingVector{Values: []float64{1}, Dimension: 1}))

	missing, err := store.ListMissingVector(ctx, 1)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, oldest, missing[0].ID)
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := cosineSimilarity([]float64{1, 0}, []float64{1, 0, 0})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
