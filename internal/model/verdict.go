package model

import "time"

// VerdictLabel is the final classification of a claim
type VerdictLabel string

const (
	VerdictSupported            VerdictLabel = "supported"
	VerdictRefuted              VerdictLabel = "refuted"
	VerdictInsufficientEvidence VerdictLabel = "insufficient_evidence"
	VerdictConflicting          VerdictLabel = "conflicting"
)

// Verdict is the output of one completed verification run. It is created
// exactly once by the aggregator and never edited in place; a re-run of the
// same claim produces a new Verdict that supersedes this one.
type Verdict struct {
	ClaimID            string       `json:"claim_id"`
	Label              VerdictLabel `json:"label"`
	Confidence         float64      `json:"confidence"` // In [0,1]
	SupportingEvidence []string     `json:"supporting_evidence,omitempty"`
	Reasoning          []NLIResult  `json:"reasoning_evidence,omitempty"`
	Partial            bool         `json:"partial,omitempty"`        // Computed from an incomplete result set at the deadline
	LowConfidence      bool         `json:"low_confidence,omitempty"` // Confidence fell below the configured reporting threshold
	ProducedAt         time.Time    `json:"produced_at"`
}
