package outbound

import (
	"context"

	"commandcenter/internal/domain/search"
)

// EmbeddingProvider generates a fixed-length vector for a text. Providers
// differ in output dimension; callers must treat the dimension as
// provider-dependent, never as a global constant.
type EmbeddingProvider interface {
	// Name identifies the provider in logs, errors and vector metadata.
	Name() string

	// Generate returns the embedding vector for the text. Input is assumed
	// to be sanitized and within the provider's length ceiling; the gateway
	// owns that preparation.
	Generate(ctx context.Context, text string) (*search.EmbeddingVector, error)
}

// EmbeddingGateway is the provider chain the rest of the system uses:
// ordered providers with fallback, aggregated terminal errors, sanitized
// input.
type EmbeddingGateway interface {
	// Generate embeds the text with the first provider that succeeds.
	Generate(ctx context.Context, text string) (*search.EmbeddingVector, error)
}
