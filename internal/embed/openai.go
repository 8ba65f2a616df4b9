package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/truthgraph/truthgraph/internal/model"
)

// Client implements Embedder against an OpenAI-compatible embeddings
// endpoint. A custom BaseURL points it at local inference servers that
// speak the same protocol.
type Client struct {
	client  *openai.Client
	model   string
	dim     int
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a new embedding client from configuration
func NewClient(cfg model.EmbeddingConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		dim:     cfg.Dimension,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Dim returns the configured output dimension
func (c *Client) Dim() int {
	return c.dim
}

// Embed embeds a single batch of texts. Order of the response vectors
// matches input order regardless of the order the provider returns them.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctxWithTimeout, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response: index %d out of range", item.Index)
		}
		if len(item.Embedding) != c.dim {
			return nil, fmt.Errorf("embedding response: dimension %d, expected %d", len(item.Embedding), c.dim)
		}
		vectors[item.Index] = item.Embedding
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding response: missing vector for input %d", i)
		}
	}

	return vectors, nil
}

// classifyError maps provider errors onto the package sentinels
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 413, apiErr.HTTPStatusCode == 400 && strings.Contains(strings.ToLower(apiErr.Message), "too large"):
			return fmt.Errorf("%w: %v", ErrBatchTooLarge, err)
		case apiErr.HTTPStatusCode >= 500, apiErr.HTTPStatusCode == 401, apiErr.HTTPStatusCode == 404:
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}

	return fmt.Errorf("embedding request: %w", err)
}
