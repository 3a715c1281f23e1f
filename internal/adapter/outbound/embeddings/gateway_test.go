package embeddings

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
	"commandcenter/internal/port/outbound"
)

type fakeProvider struct {
	name  string
	err   error
	calls int
	seen  string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, text string) (*search.EmbeddingVector, error) {
	f.calls++
	f.seen = text
	if f.err != nil {
		return nil, f.err
	}
	return &search.EmbeddingVector{
		Values:       []float64{1, 0, 0},
		Dimension:    3,
		ProviderName: f.name,
		ModelName:    f.name + "-model",
	}, nil
}

// TestGateway_PrimarySucceeds verifies the fallback provider is never
// consulted when the primary returns a vector.
func TestGateway_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "voyage"}
	fallback := &fakeProvider{name: "openai"}
	gw := NewGateway([]outbound.EmbeddingProvider{primary, fallback}, 0)

	vec, err := gw.Generate(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "voyage", vec.ProviderName)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

// TestGateway_FallsBackOnPrimaryFailure verifies the chain moves to the
// next provider when the first fails, and the caller sees only success.
func TestGateway_FallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeProvider{name: "voyage", err: domain.NewTransient("rate limited", nil)}
	fallback := &fakeProvider{name: "openai"}
	gw := NewGateway([]outbound.EmbeddingProvider{primary, fallback}, 0)

	vec, err := gw.Generate(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "openai", vec.ProviderName)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

// TestGateway_AllProvidersFail verifies the aggregated error names every
// provider in the chain and is terminal.
func TestGateway_AllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "voyage", err: domain.NewTransient("rate limited", nil)}
	fallback := &fakeProvider{name: "openai", err: domain.NewTerminal("invalid key", nil)}
	gw := NewGateway([]outbound.EmbeddingProvider{primary, fallback}, 0)

	_, err := gw.Generate(context.Background(), "hello world")
	require.Error(t, err)
	assert.Equal(t, domain.KindTerminal, domain.KindOf(err))
	assert.Contains(t, err.Error(), "voyage")
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "rate limited")
	assert.Contains(t, err.Error(), "invalid key")
}

// TestGateway_NoProviders verifies an unconfigured gateway reports a
// configuration error instead of silently returning nothing.
func TestGateway_NoProviders(t *testing.T) {
	gw := NewGateway(nil, 0)

	_, err := gw.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrNoProviderConfigured)
}

// TestGateway_SanitizesInput verifies whitespace collapsing and length
// truncation before the text reaches a provider.
func TestGateway_SanitizesInput(t *testing.T) {
	provider := &fakeProvider{name: "voyage"}
	gw := NewGateway([]outbound.EmbeddingProvider{provider}, 20)

	_, err := gw.Generate(context.Background(), "  hello\n\n  world\t again  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world again", provider.seen)

	_, err = gw.Generate(context.Background(), strings.Repeat("a ", 100))
	require.NoError(t, err)
	assert.Len(t, provider.seen, 20)
}

// TestGateway_TruncatesAtRuneBoundary verifies the length cap never splits
// a multi-byte rune, so providers always receive valid UTF-8.
func TestGateway_TruncatesAtRuneBoundary(t *testing.T) {
	provider := &fakeProvider{name: "voyage"}
	gw := NewGateway([]outbound.EmbeddingProvider{provider}, 5)

	// "aé日本" is 9 bytes; a 5-byte cap lands inside 日 and must back off.
	_, err := gw.Generate(context.Background(), "aé日本")
	require.NoError(t, err)
	assert.Equal(t, "aé", provider.seen)
	assert.True(t, utf8.ValidString(provider.seen))
}

// TestGateway_EmptyAfterSanitization verifies whitespace-only input is
// rejected as a validation error without calling any provider.
func TestGateway_EmptyAfterSanitization(t *testing.T) {
	provider := &fakeProvider{name: "voyage"}
	gw := NewGateway([]outbound.EmbeddingProvider{provider}, 0)

	_, err := gw.Generate(context.Background(), "   \n\t  ")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, 0, provider.calls)
}
