package index

import (
	"math"
	"strings"
	"unicode"

	"github.com/truthgraph/truthgraph/internal/model"
)

// BM25 parameters, standard values
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Index scores documents by term overlap. It recovers evidence that is
// topically relevant but embeds far from the claim (rare-term matches).
type bm25Index struct {
	termFreqs []map[string]int // Per-document term counts
	docLens   []int
	docFreq   map[string]int // Documents containing each term
	avgDocLen float64
}

// buildBM25 indexes evidence text plus any declared sparse terms
func buildBM25(items []model.EvidenceItem) *bm25Index {
	ix := &bm25Index{
		termFreqs: make([]map[string]int, len(items)),
		docLens:   make([]int, len(items)),
		docFreq:   make(map[string]int),
	}

	var totalLen int
	for i, item := range items {
		terms := tokenize(item.Text)
		for _, t := range item.SparseTerms {
			terms = append(terms, strings.ToLower(t))
		}

		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}

		ix.termFreqs[i] = freq
		ix.docLens[i] = len(terms)
		totalLen += len(terms)

		for t := range freq {
			ix.docFreq[t]++
		}
	}

	if len(items) > 0 {
		ix.avgDocLen = float64(totalLen) / float64(len(items))
	}

	return ix
}

// search returns BM25 scores keyed by document index for all documents
// matching at least one query term.
func (ix *bm25Index) search(query string) map[int]float64 {
	scores := make(map[int]float64)
	terms := tokenize(query)
	if len(terms) == 0 || len(ix.termFreqs) == 0 {
		return scores
	}

	n := float64(len(ix.termFreqs))
	for _, term := range terms {
		df, ok := ix.docFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))

		for doc, freqs := range ix.termFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(ix.docLens[doc])/ix.avgDocLen
			scores[doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	return scores
}

// tokenize lowercases and splits on non-alphanumeric runs
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
