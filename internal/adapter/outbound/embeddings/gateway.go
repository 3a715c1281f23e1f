// Package embeddings provides the embedding provider gateway: an ordered
// provider chain with fallback, input sanitization and aggregated errors.
package embeddings

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
	"commandcenter/internal/port/outbound"
)

// DefaultMaxInputChars is the hard input length cap applied when the
// gateway is constructed without one. Input past the cap is truncated, not
// rejected.
const DefaultMaxInputChars = 8000

// Gateway tries each configured provider in order and returns the first
// success. Callers never see a single provider's transient failure if a
// fallback succeeds; only after the whole chain fails does the gateway
// raise a terminal error aggregating every provider's message.
type Gateway struct {
	providers     []outbound.EmbeddingProvider
	maxInputChars int
}

// NewGateway creates a gateway over the given providers, primary first.
func NewGateway(providers []outbound.EmbeddingProvider, maxInputChars int) *Gateway {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	return &Gateway{providers: providers, maxInputChars: maxInputChars}
}

// Generate embeds the text with the first provider that succeeds.
func (g *Gateway) Generate(ctx context.Context, text string) (*search.EmbeddingVector, error) {
	if len(g.providers) == 0 {
		return nil, domain.NewConfiguration("embedding gateway has no providers", domain.ErrNoProviderConfigured)
	}

	sanitized := g.sanitize(text)
	if sanitized == "" {
		return nil, domain.NewValidation("embedding input is empty after sanitization", nil)
	}

	var failures []string
	for _, provider := range g.providers {
		vector, err := provider.Generate(ctx, sanitized)
		if err == nil {
			return vector, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slogger.Warn(ctx, "Embedding provider failed, trying next", slogger.Fields{
			"provider": provider.Name(),
			"error":    err.Error(),
		})
		failures = append(failures, fmt.Sprintf("%s: %v", provider.Name(), err))
	}

	return nil, domain.NewTerminal(
		fmt.Sprintf("all embedding providers failed: %s", strings.Join(failures, "; ")),
		nil,
	)
}

// sanitize trims, collapses whitespace runs and truncates to the length
// cap. Truncation is preferred over failure so oversized notes still get a
// usable vector.
func (g *Gateway) sanitize(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if len(collapsed) > g.maxInputChars {
		collapsed = truncateAtRuneBoundary(collapsed, g.maxInputChars)
	}
	return collapsed
}

// truncateAtRuneBoundary cuts s to at most maxBytes without splitting a
// multi-byte rune, backing off to the previous boundary when the cap lands
// mid-rune.
func truncateAtRuneBoundary(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
