// Package index implements the hybrid evidence index: an inverted-file
// approximate nearest-neighbor index over evidence embeddings combined with
// BM25 lexical scoring over the same corpus.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/truthgraph/truthgraph/internal/model"
)

// ErrIndexUnavailable is returned when the index has no built corpus or its
// vectors are unusable. Treated as transient by the task coordinator.
var ErrIndexUnavailable = errors.New("evidence index unavailable")

// Mode selects the retrieval strategy for a query
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
	ModeHybrid  Mode = "hybrid"
)

// Query describes one retrieval request
type Query struct {
	Text   string    // Claim text, used for lexical scoring
	Vector []float32 // Claim embedding, used for vector scoring
	K      int       // Number of results wanted; capped at corpus size
	Mode   Mode
}

// Index is the hybrid evidence index. Rebuild replaces the corpus
// atomically; Search is safe for concurrent use across workers.
type Index struct {
	mu sync.RWMutex

	items   []model.EvidenceItem
	byID    map[string]int
	vectors [][]float32 // Normalized copies of item embeddings
	dim     int

	ivf *ivfIndex
	lex *bm25Index

	partitions    int
	probes        int
	vectorWeight  float64
	lexicalWeight float64

	ready bool
}

// New creates an empty index. The dimension is fixed at construction and
// every corpus item must match it exactly.
func New(cfg model.IndexConfig, dim int) *Index {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 16
	}
	probes := cfg.Probes
	if probes <= 0 {
		probes = 4
	}

	vw, lw := cfg.VectorWeight, cfg.LexicalWeight
	if vw <= 0 && lw <= 0 {
		vw, lw = 0.5, 0.5
	}

	return &Index{
		dim:           dim,
		partitions:    partitions,
		probes:        probes,
		vectorWeight:  vw,
		lexicalWeight: lw,
	}
}

// Rebuild replaces the indexed corpus. A dimensionality mismatch or a
// missing embedding on any item is a hard construction-time error and
// leaves the previous corpus in place.
func (x *Index) Rebuild(items []model.EvidenceItem) error {
	vectors := make([][]float32, len(items))
	byID := make(map[string]int, len(items))
	for i, item := range items {
		if len(item.Embedding) != x.dim {
			return fmt.Errorf("evidence %q: embedding dimension %d, index expects %d", item.ID, len(item.Embedding), x.dim)
		}
		if _, dup := byID[item.ID]; dup {
			return fmt.Errorf("evidence %q: duplicate id", item.ID)
		}
		vectors[i] = normalize(item.Embedding)
		byID[item.ID] = i
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.items = items
	x.byID = byID
	x.vectors = vectors
	x.ivf = buildIVF(vectors, x.partitions)
	x.lex = buildBM25(items)
	x.ready = true

	return nil
}

// SetTuning adjusts the IVF parameters at runtime. A probes change applies
// to the next query; a partitions change re-clusters the current corpus.
func (x *Index) SetTuning(partitions, probes int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if probes > 0 {
		x.probes = probes
	}
	if partitions > 0 && partitions != x.partitions {
		x.partitions = partitions
		if x.ready {
			x.ivf = buildIVF(x.vectors, x.partitions)
		}
	}
}

// Evidence returns the indexed item with the given id
func (x *Index) Evidence(id string) (model.EvidenceItem, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i, ok := x.byID[id]
	if !ok {
		return model.EvidenceItem{}, false
	}
	return x.items[i], true
}

// Size returns the number of indexed evidence items
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

// Search returns the top-k evidence items for the query, sorted by
// descending similarity. An empty corpus yields an empty list, not an error.
func (x *Index) Search(ctx context.Context, q Query) ([]model.RetrievedEvidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.ready {
		return nil, ErrIndexUnavailable
	}
	if len(x.items) == 0 || q.K <= 0 {
		return []model.RetrievedEvidence{}, nil
	}

	k := q.K
	if k > len(x.items) {
		k = len(x.items)
	}

	var hits []scoredHit
	switch q.Mode {
	case ModeVector:
		hits = x.searchVector(q.Vector, k)
	case ModeLexical:
		hits = x.searchLexical(q.Text, k)
	case ModeHybrid, "":
		hits = x.searchHybrid(q, k)
	default:
		return nil, fmt.Errorf("unknown search mode %q", q.Mode)
	}

	results := make([]model.RetrievedEvidence, len(hits))
	for i, h := range hits {
		results[i] = model.RetrievedEvidence{
			EvidenceID: x.items[h.idx].ID,
			Score:      h.combined,
			Rank:       i,
		}
	}

	return results, nil
}

// scoredHit carries per-mode scores through the merge so ties can break on
// the lexical component before falling back to evidence id.
type scoredHit struct {
	idx      int
	combined float64
	lexical  float64
}

func (x *Index) searchVector(query []float32, k int) []scoredHit {
	if len(query) != x.dim {
		return nil
	}
	q := normalize(query)

	candidates := x.ivf.search(q, x.probes)
	hits := make([]scoredHit, 0, len(candidates))
	for _, idx := range candidates {
		hits = append(hits, scoredHit{idx: idx, combined: float64(dot(q, x.vectors[idx]))})
	}

	x.sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (x *Index) searchLexical(text string, k int) []scoredHit {
	scores := x.lex.search(text)
	hits := make([]scoredHit, 0, len(scores))
	for idx, score := range scores {
		hits = append(hits, scoredHit{idx: idx, combined: score, lexical: score})
	}

	x.sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// searchHybrid retrieves top-2k from each mode independently, merges by a
// weighted combination of min-max normalized scores, and dedupes by item.
func (x *Index) searchHybrid(q Query, k int) []scoredHit {
	fetch := 2 * k

	vecHits := x.searchVector(q.Vector, fetch)
	lexHits := x.searchLexical(q.Text, fetch)

	vecNorm := normalizeScores(vecHits)
	lexNorm := normalizeScores(lexHits)

	merged := make(map[int]*scoredHit)
	for _, h := range vecHits {
		merged[h.idx] = &scoredHit{idx: h.idx, combined: x.vectorWeight * vecNorm[h.idx]}
	}
	for _, h := range lexHits {
		m, ok := merged[h.idx]
		if !ok {
			m = &scoredHit{idx: h.idx}
			merged[h.idx] = m
		}
		m.combined += x.lexicalWeight * lexNorm[h.idx]
		m.lexical = h.combined
	}

	hits := make([]scoredHit, 0, len(merged))
	for _, m := range merged {
		hits = append(hits, *m)
	}

	x.sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// sortHits orders by combined score descending, breaking ties by lexical
// score descending and then by evidence id ascending.
func (x *Index) sortHits(hits []scoredHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].combined != hits[j].combined {
			return hits[i].combined > hits[j].combined
		}
		if hits[i].lexical != hits[j].lexical {
			return hits[i].lexical > hits[j].lexical
		}
		return x.items[hits[i].idx].ID < x.items[hits[j].idx].ID
	})
}

// normalizeScores min-max normalizes combined scores into [0,1] keyed by
// item index. A single-element or constant list maps to 1.0.
func normalizeScores(hits []scoredHit) map[int]float64 {
	norm := make(map[int]float64, len(hits))
	if len(hits) == 0 {
		return norm
	}

	minScore, maxScore := hits[0].combined, hits[0].combined
	for _, h := range hits[1:] {
		if h.combined < minScore {
			minScore = h.combined
		}
		if h.combined > maxScore {
			maxScore = h.combined
		}
	}

	span := maxScore - minScore
	for _, h := range hits {
		if span == 0 {
			norm[h.idx] = 1.0
		} else {
			norm[h.idx] = (h.combined - minScore) / span
		}
	}
	return norm
}
