// Package verification orchestrates a full identity verification: rate
// limiting, capture validation, candidate retrieval, feature extraction,
// parallel matching, and a deterministic best-match decision.
package verification

import (
	"github.com/google/uuid"

	"veriprint/internal/template/models"
)

// MatchResult is the comparison outcome against one candidate template.
type MatchResult struct {
	TemplateID uuid.UUID
	FingerSlot models.FingerSlot
	Similarity int
	Verified   bool
	Confidence int
}

// Outcome is the terminal result of one verification call. Verification is
// synchronous; there is no pending state.
type Outcome struct {
	Verified   bool
	Similarity int
	Confidence int
	// BestMatch identifies the winning candidate. Highest similarity wins;
	// ties go to the template enrolled earliest.
	BestMatch         *MatchResult
	TemplatesCompared int
	ProcessingTimeMs  int64
}
