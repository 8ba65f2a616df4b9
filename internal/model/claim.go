package model

import "time"

// Claim represents a natural-language statement submitted for verification.
// Claims are immutable once submitted; re-verifying a claim creates a new
// verification run, never a new claim.
type Claim struct {
	ID          string    `json:"id"`           // Unique claim identifier
	Text        string    `json:"text"`         // The claim text itself (normalized UTF-8)
	SubmittedAt time.Time `json:"submitted_at"` // When the claim was submitted
}
