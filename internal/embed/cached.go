package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/truthgraph/truthgraph/internal/cache"
)

// CachedEmbedder wraps an Embedder with a cache keyed by model and text.
// Only cache misses reach the underlying embedder; hit/miss partitioning
// preserves input order in the output.
type CachedEmbedder struct {
	inner     Embedder
	cache     cache.Cache
	modelName string
}

// NewCachedEmbedder creates a caching wrapper around an embedder
func NewCachedEmbedder(inner Embedder, c cache.Cache, modelName string) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		cache:     c,
		modelName: modelName,
	}
}

// Dim returns the output dimensionality of the wrapped embedder
func (e *CachedEmbedder) Dim() int {
	return e.inner.Dim()
}

// Embed returns cached vectors where available and embeds the rest
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cache.EmbeddingKey(e.modelName, text)
		if data, found := e.cache.Get(key); found {
			vec, err := decodeVector(data, e.inner.Dim())
			if err == nil {
				vectors[i] = vec
				continue
			}
			// Corrupt entry: drop it and re-embed
			_ = e.cache.Delete(key)
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		vectors[idx] = fresh[j]
		key := cache.EmbeddingKey(e.modelName, texts[idx])
		_ = e.cache.Set(key, encodeVector(fresh[j]), 0)
	}

	return vectors, nil
}

// encodeVector packs a float32 vector into little-endian bytes
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a vector, verifying the expected dimension
func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != 4*dim {
		return nil, fmt.Errorf("cached vector: %d bytes, expected %d", len(data), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
