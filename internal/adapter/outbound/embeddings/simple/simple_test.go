package simple

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandcenter/internal/domain/errors/domain"
)

// TestProvider_Deterministic verifies the same text always maps to the
// same vector and different texts do not.
func TestProvider_Deterministic(t *testing.T) {
	p := New()

	a, err := p.Generate(context.Background(), "call with acme corp")
	require.NoError(t, err)
	b, err := p.Generate(context.Background(), "call with acme corp")
	require.NoError(t, err)
	c, err := p.Generate(context.Background(), "follow-up email")
	require.NoError(t, err)

	assert.Equal(t, a.Values, b.Values)
	assert.NotEqual(t, a.Values, c.Values)
	assert.Equal(t, embedDim, a.Dimension)
	assert.Equal(t, "deterministic", a.ProviderName)
}

// TestProvider_L2Normalized verifies the output vector has unit length.
func TestProvider_L2Normalized(t *testing.T) {
	p := New()

	vec, err := p.Generate(context.Background(), "some text")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec.Values {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestProvider_EmptyText(t *testing.T) {
	p := New()

	_, err := p.Generate(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
