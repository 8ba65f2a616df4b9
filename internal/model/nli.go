package model

import "math"

// NLILabel classifies a (claim, evidence) pair
type NLILabel string

const (
	LabelEntails     NLILabel = "entails"
	LabelContradicts NLILabel = "contradicts"
	LabelNeutral     NLILabel = "neutral"
)

// ProbabilityTolerance is the allowed deviation of p_entail+p_contradict+p_neutral
// from 1.0 before a result is rejected at the scoring boundary.
const ProbabilityTolerance = 1e-3

// NLIResult holds the entailment judgment for one evidence item against a claim
type NLIResult struct {
	EvidenceID  string   `json:"evidence_id"`
	Label       NLILabel `json:"label"`        // Arg-max of the three probabilities
	PEntail     float64  `json:"p_entail"`
	PContradict float64  `json:"p_contradict"`
	PNeutral    float64  `json:"p_neutral"`
	Truncated   bool     `json:"truncated,omitempty"`  // Evidence text was cut to fit the token budget
	Similarity  float64  `json:"similarity,omitempty"` // Retrieval similarity, carried for weighting
}

// DominantLabel returns the arg-max label of the probability triple.
// Ties resolve entails > contradicts > neutral so the result is deterministic.
func (r NLIResult) DominantLabel() NLILabel {
	if r.PEntail >= r.PContradict && r.PEntail >= r.PNeutral {
		return LabelEntails
	}
	if r.PContradict >= r.PNeutral {
		return LabelContradicts
	}
	return LabelNeutral
}

// ProbabilitySum returns p_entail + p_contradict + p_neutral.
func (r NLIResult) ProbabilitySum() float64 {
	return r.PEntail + r.PContradict + r.PNeutral
}

// ValidProbabilities reports whether the probabilities sum to 1 within tolerance.
func (r NLIResult) ValidProbabilities() bool {
	return math.Abs(r.ProbabilitySum()-1.0) <= ProbabilityTolerance
}
