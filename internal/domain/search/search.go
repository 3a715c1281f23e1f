// Package search provides the domain types for semantic search: embedding
// vectors and similarity-scored results.
package search

// EmbeddingVector is a fixed-length vector produced by an embedding
// provider. It is always attached to an owning record, never persisted on
// its own. Dimension is provider-dependent, not a global constant.
type EmbeddingVector struct {
	Values       []float64 `json:"values"`
	Dimension    int       `json:"dimension"`
	ProviderName string    `json:"provider_name"`
	ModelName    string    `json:"model_name"`
}

// Result pairs an item with its similarity score for one query. Results are
// ephemeral: constructed per query, never persisted.
//
// Similarity is defined as 1 - cosine_distance, in [0,1] for normalized
// embeddings. Results are ordered by descending similarity and every score
// strictly exceeds the caller's threshold.
type Result[T any] struct {
	Item            T       `json:"item"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Options controls a search query.
type Options struct {
	Limit         int
	Offset        int
	MinSimilarity float64
}

// Search defaults and bounds.
const (
	DefaultLimit         = 10
	MaxLimit             = 100
	DefaultMinSimilarity = 0.7
)

// ApplyDefaults fills unset fields and clamps the limit.
func (o *Options) ApplyDefaults() {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
