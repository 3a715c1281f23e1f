// Package voyage implements the embedding provider backed by the Voyage AI
// embeddings API.
package voyage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
)

const (
	// DefaultModel is the default Voyage embedding model.
	DefaultModel = "voyage-3"

	// DefaultDimensions is the output dimensionality of voyage-3.
	DefaultDimensions = 1024

	defaultBaseURL = "https://api.voyageai.com/v1"
	defaultTimeout = 30 * time.Second
)

// ClientConfig holds the configuration for the Voyage API client.
type ClientConfig struct {
	APIKey     string        `json:"api_key"`
	BaseURL    string        `json:"base_url"`
	Model      string        `json:"model"`
	Dimensions int           `json:"dimensions"`
	Timeout    time.Duration `json:"timeout"`
	UserAgent  string        `json:"user_agent"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API key cannot be empty")
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil || !strings.HasPrefix(c.BaseURL, "http") {
			return errors.New("invalid base URL")
		}
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}
	if c.Dimensions < 0 {
		return errors.New("dimensions cannot be negative")
	}
	return nil
}

func (c *ClientConfig) withDefaults() *ClientConfig {
	out := *c
	out.APIKey = strings.TrimSpace(out.APIKey)
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if out.Model == "" {
		out.Model = DefaultModel
	}
	if out.Dimensions == 0 {
		out.Dimensions = DefaultDimensions
	}
	if out.Timeout == 0 {
		out.Timeout = defaultTimeout
	}
	if out.UserAgent == "" {
		out.UserAgent = "CommandCenter-Voyage-Client/1.0"
	}
	return &out
}

// Client calls the Voyage embeddings endpoint.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Voyage API client with the provided configuration.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, domain.NewConfiguration("invalid voyage client config: "+err.Error(), err)
	}

	final := config.withDefaults()
	return &Client{
		config:     final,
		httpClient: newHTTPClient(final.Timeout),
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       50,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Name identifies this provider in fallback chains and error messages.
func (c *Client) Name() string {
	return "voyage"
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Generate embeds the given text and returns the resulting vector.
func (c *Client) Generate(ctx context.Context, text string) (*search.EmbeddingVector, error) {
	if text == "" {
		return nil, domain.NewValidation("text cannot be empty", nil)
	}

	body, err := json.Marshal(embeddingRequest{Input: []string{text}, Model: c.config.Model})
	if err != nil {
		return nil, domain.NewTerminal("failed to serialize voyage request", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		strings.TrimSuffix(c.config.BaseURL, "/")+"/embeddings",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, domain.NewTerminal("failed to create voyage request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransient("voyage request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, domain.NewTransient("failed to read voyage response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, payload)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, domain.NewTerminal("failed to parse voyage response", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, domain.NewTerminal("voyage response missing embedding values", nil)
	}

	values := parsed.Data[0].Embedding
	if len(values) != c.config.Dimensions {
		slogger.Warn(ctx, "Voyage embedding dimensions differ from configured", slogger.Fields{
			"expected": c.config.Dimensions,
			"actual":   len(values),
		})
	}

	return &search.EmbeddingVector{
		Values:       values,
		Dimension:    len(values),
		ProviderName: c.Name(),
		ModelName:    c.config.Model,
	}, nil
}

func classifyStatus(status int, payload []byte) error {
	detail := "voyage API error"
	var parsed errorResponse
	if json.Unmarshal(payload, &parsed) == nil && parsed.Detail != "" {
		detail = parsed.Detail
	}
	msg := fmt.Sprintf("voyage API returned %d: %s", status, detail)

	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewTransient(msg, nil)
	case status >= 500:
		return domain.NewTransient(msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewTerminal(msg, nil)
	case status == http.StatusBadRequest:
		return domain.NewValidation(msg, nil)
	default:
		return domain.NewTerminal(msg, nil)
	}
}
