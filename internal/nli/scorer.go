// Package nli classifies (claim, evidence) pairs into entailment,
// contradiction, or neutral with calibrated probabilities, batching requests
// to the underlying model.
package nli

import (
	"context"
	"errors"
	"fmt"

	"github.com/truthgraph/truthgraph/internal/model"
)

// ErrModelUnavailable indicates the NLI model cannot be reached. Fatal.
var ErrModelUnavailable = errors.New("nli model unavailable")

// charsPerToken is the rough token estimate used for the truncation budget.
// It errs short so real tokenizers stay under the model limit.
const charsPerToken = 4

// Pair is one claim/evidence input to the scorer
type Pair struct {
	ClaimText    string
	EvidenceText string
	EvidenceID   string
	Similarity   float64 // Retrieval similarity, carried onto the result
}

// Scorer scores pairs in input order
type Scorer interface {
	Score(ctx context.Context, pairs []Pair) ([]model.NLIResult, error)
}

// Service wraps a Scorer with batching, the truncation policy, and the
// probability-sum invariant. Scoring one pair at a time or thirty-two at a
// time must produce the same labels; pairs are independent and batching is
// purely a throughput concern.
type Service struct {
	scorer      Scorer
	batchSize   int
	tokenBudget int
}

// NewService creates a batching NLI service
func NewService(scorer Scorer, batchSize, tokenBudget int) *Service {
	if batchSize <= 0 {
		batchSize = 8
	}
	if tokenBudget <= 0 {
		tokenBudget = 1024
	}
	return &Service{
		scorer:      scorer,
		batchSize:   batchSize,
		tokenBudget: tokenBudget,
	}
}

// Score scores all pairs, order-preserving. Evidence longer than the token
// budget is truncated from the evidence side (the claim is short and
// load-bearing) and the result is flagged so the aggregator can down-weight
// it.
func (s *Service) Score(ctx context.Context, pairs []Pair) ([]model.NLIResult, error) {
	if len(pairs) == 0 {
		return []model.NLIResult{}, nil
	}

	prepared := make([]Pair, len(pairs))
	truncated := make([]bool, len(pairs))
	for i, p := range pairs {
		prepared[i], truncated[i] = s.truncate(p)
	}

	results := make([]model.NLIResult, 0, len(pairs))
	for start := 0; start < len(prepared); start += s.batchSize {
		end := start + s.batchSize
		if end > len(prepared) {
			end = len(prepared)
		}

		batch, err := s.scorer.Score(ctx, prepared[start:end])
		if err != nil {
			return nil, fmt.Errorf("score batch [%d:%d]: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("score batch [%d:%d]: got %d results for %d pairs", start, end, len(batch), end-start)
		}

		results = append(results, batch...)
	}

	for i := range results {
		results[i].EvidenceID = pairs[i].EvidenceID
		results[i].Similarity = pairs[i].Similarity
		results[i].Truncated = truncated[i]

		if err := validateProbabilities(&results[i]); err != nil {
			return nil, fmt.Errorf("pair %d (%s): %w", i, pairs[i].EvidenceID, err)
		}
		results[i].Label = results[i].DominantLabel()
	}

	return results, nil
}

// truncate cuts the evidence text so claim+evidence fit the token budget.
// The claim is never cut; if it alone exceeds the budget the evidence is
// reduced to nothing and the pair is still scored.
func (s *Service) truncate(p Pair) (Pair, bool) {
	budgetChars := s.tokenBudget * charsPerToken
	claimChars := len(p.ClaimText)

	remaining := budgetChars - claimChars
	if remaining < 0 {
		remaining = 0
	}
	if len(p.EvidenceText) <= remaining {
		return p, false
	}

	// Cut on a rune boundary so truncation never produces invalid UTF-8.
	cut := remaining
	for cut > 0 && !isRuneStart(p.EvidenceText[cut]) {
		cut--
	}

	p.EvidenceText = p.EvidenceText[:cut]
	return p, true
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// validateProbabilities enforces the sum-to-one invariant at the scoring
// boundary. Small drift is renormalized; anything beyond tolerance is a
// scoring error.
func validateProbabilities(r *model.NLIResult) error {
	sum := r.ProbabilitySum()
	if sum <= 0 {
		return fmt.Errorf("probabilities sum to %v", sum)
	}

	drift := sum - 1.0
	if drift < 0 {
		drift = -drift
	}
	if drift > 0.05 {
		return fmt.Errorf("probabilities sum to %v, outside tolerance", sum)
	}

	r.PEntail /= sum
	r.PContradict /= sum
	r.PNeutral /= sum
	return nil
}
