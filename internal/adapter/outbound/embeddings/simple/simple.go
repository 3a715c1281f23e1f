package simple

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
)

// Dimension matches the entities schema vector column.
const embedDim = 768

// Provider implements a deterministic embedding provider. It produces a
// fixed-size vector seeded by the SHA256 of the input text, which avoids
// external network calls while still exercising the whole pipeline. Same
// text always yields the same vector, so similarity of identical texts is
// exactly 1.0.
type Provider struct{}

// New creates a new deterministic embedding provider.
func New() *Provider { return &Provider{} }

// Name identifies this provider in fallback chains and error messages.
func (p *Provider) Name() string { return "deterministic" }

// Generate returns a deterministic L2-normalized 768-d vector for the text.
func (p *Provider) Generate(_ context.Context, text string) (*search.EmbeddingVector, error) {
	if text == "" {
		return nil, domain.NewValidation("text cannot be empty", nil)
	}

	// Seed from SHA256(text)
	sum := sha256.Sum256([]byte(text))

	// Xorshift64* PRNG seeded from the hash (takes 8 bytes).
	// If the seed is zero, pick a non-zero constant.
	seed := binary.LittleEndian.Uint64(sum[:8])
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	x := seed

	out := make([]float64, embedDim)
	for i := 0; i < embedDim; i++ {
		// xorshift64*
		x ^= x >> 12
		x ^= x << 25
		x ^= x >> 27
		x *= 0x2545F4914F6CDD1D

		// Map to [-1, 1]. Use upper 53 bits to make a float in [0,1).
		mantissa := (x >> 11) & ((1 << 53) - 1)
		f := float64(mantissa) / float64(1<<53)
		out[i] = 2.0*f - 1.0
	}

	// L2 normalize so cosine similarity behaves like a dot product.
	var norm float64
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		inv := 1.0 / norm
		for i := range out {
			out[i] *= inv
		}
	}

	return &search.EmbeddingVector{
		Values:       out,
		Dimension:    len(out),
		ProviderName: p.Name(),
		ModelName:    "simple-deterministic",
	}, nil
}
