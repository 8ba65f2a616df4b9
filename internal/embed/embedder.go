// Package embed converts text to fixed-dimension vectors through an
// OpenAI-compatible embedding endpoint, with internal batching and an
// optional cache layer.
package embed

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable indicates the embedding model cannot be reached.
	// Fatal: surfaced to the caller, never retried inline.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrBatchTooLarge indicates a single batch exceeded the provider's
	// request limit. Caller error: reduce batch_size and resubmit.
	ErrBatchTooLarge = errors.New("embedding batch too large")
)

// Embedder produces one vector per input text, order- and length-preserving
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// Service wraps an Embedder with batching. Input of any length is split
// into batches of batchSize and the outputs re-joined in input order.
type Service struct {
	embedder  Embedder
	batchSize int
}

// NewService creates a batching embedding service
func NewService(embedder Embedder, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Service{
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Dim returns the output dimensionality of the underlying embedder
func (s *Service) Dim() int {
	return s.embedder.Dim()
}

// Embed embeds texts in batches. Empty input returns an empty slice; empty
// string elements pass through like any other text.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d vectors for %d texts", start, end, len(batch), end-start)
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}
