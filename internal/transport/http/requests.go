package httpapi

import (
	"time"

	"veriprint/internal/template/models"
	"veriprint/internal/verification"
)

// VerifyRequest carries a live capture for comparison. Capture travels
// base64-encoded in JSON.
type VerifyRequest struct {
	OwnerID string `json:"owner_id"`
	Capture []byte `json:"capture"`
	Format  string `json:"format"`
}

// BestMatch identifies the winning template of a verification.
type BestMatch struct {
	TemplateID string `json:"template_id"`
	FingerSlot int    `json:"finger_slot"`
	Similarity int    `json:"similarity"`
}

// VerifyResponse is the terminal outcome of a verification call.
type VerifyResponse struct {
	Verified          bool       `json:"verified"`
	Similarity        int        `json:"similarity"`
	Confidence        int        `json:"confidence"`
	BestMatch         *BestMatch `json:"best_match"`
	TemplatesCompared int        `json:"templates_compared"`
	ProcessingTimeMs  int64      `json:"processing_time_ms"`
}

func fromOutcome(o *verification.Outcome) VerifyResponse {
	resp := VerifyResponse{
		Verified:          o.Verified,
		Similarity:        o.Similarity,
		Confidence:        o.Confidence,
		TemplatesCompared: o.TemplatesCompared,
		ProcessingTimeMs:  o.ProcessingTimeMs,
	}
	if o.BestMatch != nil {
		resp.BestMatch = &BestMatch{
			TemplateID: o.BestMatch.TemplateID.String(),
			FingerSlot: int(o.BestMatch.FingerSlot),
			Similarity: o.BestMatch.Similarity,
		}
	}
	return resp
}

// EnrollRequest registers a new template for an owner's finger slot.
type EnrollRequest struct {
	OwnerID    string     `json:"owner_id"`
	FingerSlot int        `json:"finger_slot"`
	Capture    []byte     `json:"capture"`
	Format     string     `json:"format"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

func (r EnrollRequest) metadata() models.EnrollMetadata {
	var meta models.EnrollMetadata
	if r.ValidFrom != nil {
		meta.ValidFrom = *r.ValidFrom
	}
	if r.ValidUntil != nil {
		meta.ValidUntil = *r.ValidUntil
	}
	return meta
}

// EnrollResponse confirms a persisted template.
type EnrollResponse struct {
	TemplateID string `json:"template_id"`
	FingerSlot int    `json:"finger_slot"`
	Quality    int    `json:"quality"`
}

// OwnerCascadeResponse reports how many templates an owner-level state
// change affected.
type OwnerCascadeResponse struct {
	OwnerID string `json:"owner_id"`
	Count   int    `json:"count"`
}
