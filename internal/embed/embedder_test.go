package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/truthgraph/truthgraph/internal/cache"
)

// mockEmbedder derives a deterministic vector from each text and records
// the batch sizes it was called with.
type mockEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	dim     int
	err     error
}

func (m *mockEmbedder) Dim() int { return m.dim }

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, m.dim)
		for j := range vec {
			vec[j] = float32(len(text)+j) / 100
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *mockEmbedder) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func TestService_EmptyInput(t *testing.T) {
	mock := &mockEmbedder{dim: 4}
	svc := NewService(mock, 8)

	vectors, err := svc.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
	if mock.calls() != 0 {
		t.Errorf("expected no model calls for empty input, got %d", mock.calls())
	}
}

func TestService_BatchInvariance(t *testing.T) {
	texts := make([]string, 9)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d", i)
	}

	var baseline [][]float32
	for _, batchSize := range []int{1, 4, 64} {
		svc := NewService(&mockEmbedder{dim: 3}, batchSize)
		vectors, err := svc.Embed(context.Background(), texts)
		if err != nil {
			t.Fatalf("batch size %d: %v", batchSize, err)
		}
		if len(vectors) != len(texts) {
			t.Fatalf("batch size %d: got %d vectors for %d texts", batchSize, len(vectors), len(texts))
		}

		if baseline == nil {
			baseline = vectors
			continue
		}
		for i := range vectors {
			for j := range vectors[i] {
				if vectors[i][j] != baseline[i][j] {
					t.Errorf("batch size %d vector %d differs from baseline", batchSize, i)
				}
			}
		}
	}
}

func TestService_BatchSplitting(t *testing.T) {
	mock := &mockEmbedder{dim: 2}
	svc := NewService(mock, 4)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	if _, err := svc.Embed(context.Background(), texts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{4, 4, 2}
	if len(mock.batches) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(mock.batches))
	}
	for i, n := range want {
		if len(mock.batches[i]) != n {
			t.Errorf("batch %d: expected size %d, got %d", i, n, len(mock.batches[i]))
		}
	}
}

func TestService_PropagatesError(t *testing.T) {
	svc := NewService(&mockEmbedder{dim: 2, err: ErrModelUnavailable}, 4)

	_, err := svc.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestCachedEmbedder_HitsSkipModel(t *testing.T) {
	mock := &mockEmbedder{dim: 3}
	c := cache.NewMemoryCache(time.Minute)
	cached := NewCachedEmbedder(mock, c, "test-model")

	texts := []string{"alpha", "beta"}

	first, err := cached.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls() != 1 {
		t.Fatalf("expected 1 model call on cold cache, got %d", mock.calls())
	}

	second, err := cached.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls() != 1 {
		t.Errorf("expected no additional model call on warm cache, got %d", mock.calls())
	}

	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cached vector %d differs from original", i)
			}
		}
	}
}

func TestCachedEmbedder_PartialMissPreservesOrder(t *testing.T) {
	mock := &mockEmbedder{dim: 2}
	c := cache.NewMemoryCache(time.Minute)
	cached := NewCachedEmbedder(mock, c, "test-model")

	// Warm the cache with one text only
	if _, err := cached.Embed(context.Background(), []string{"warm"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vectors, err := cached.Embed(context.Background(), []string{"cold-a", "warm", "cold-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}

	// The second call should only have embedded the two cold texts
	last := mock.batches[len(mock.batches)-1]
	if len(last) != 2 || last[0] != "cold-a" || last[1] != "cold-b" {
		t.Errorf("expected only cold texts in model call, got %v", last)
	}

	// Each slot must hold the vector for its own text
	direct, _ := mock.Embed(context.Background(), []string{"cold-a", "warm", "cold-b"})
	for i := range vectors {
		for j := range vectors[i] {
			if vectors[i][j] != direct[i][j] {
				t.Fatalf("vector %d does not match its text", i)
			}
		}
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.14159, 0}
	decoded, err := decodeVector(encodeVector(vec), len(vec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("element %d: expected %f, got %f", i, vec[i], decoded[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}, 4); err == nil {
		t.Error("expected error for wrong-length payload")
	}
}
