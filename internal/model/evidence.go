package model

// EvidenceItem represents a corpus passage used as support or refutation
// material. Items are loaded once at corpus-build time and are read-only
// during pipeline execution.
type EvidenceItem struct {
	ID          string    `json:"id"`                     // Unique evidence identifier
	Text        string    `json:"text"`                   // Passage text
	Source      string    `json:"source,omitempty"`       // Origin (URL, document name)
	Embedding   []float32 `json:"embedding,omitempty"`    // Dense vector representation
	SparseTerms []string  `json:"sparse_terms,omitempty"` // Extra lexical terms for BM25 matching
}

// RetrievedEvidence is a transient per-query search hit. It is never
// persisted independently of the verification run that produced it.
type RetrievedEvidence struct {
	EvidenceID string  `json:"evidence_id"`
	Score      float64 `json:"similarity_score"` // Combined similarity, higher is closer
	Rank       int     `json:"rank"`             // 0-based position in the result list
}
