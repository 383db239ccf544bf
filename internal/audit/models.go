package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategorySecurity covers events feeding security monitoring: failed
	// verifications, rate limiting, integrity failures.
	CategorySecurity EventCategory = "security"
	// CategoryCompliance covers events with regulatory significance:
	// enrollment, revocation, owner-level cascades.
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers routine events: successful verifications,
	// expiry sweeps.
	CategoryOperations EventCategory = "operations"
)

// EventKind names every audit event the pipeline emits.
type EventKind string

const (
	EventTemplateEnrolled          EventKind = "template_enrolled"
	EventTemplateRevoked           EventKind = "template_revoked"
	EventTemplateDisabledIntegrity EventKind = "template_disabled_integrity"
	EventTemplatesExpired          EventKind = "templates_expired"
	EventOwnerTemplatesDisabled    EventKind = "owner_templates_disabled"
	EventOwnerTemplatesRevoked     EventKind = "owner_templates_revoked"
	EventVerificationSucceeded     EventKind = "verification_succeeded"
	EventVerificationFailed        EventKind = "verification_failed"
	EventVerificationRateLimited   EventKind = "verification_rate_limited"
)

var eventCategories = map[EventKind]EventCategory{
	EventTemplateEnrolled:          CategoryCompliance,
	EventTemplateRevoked:           CategoryCompliance,
	EventTemplateDisabledIntegrity: CategorySecurity,
	EventTemplatesExpired:          CategoryOperations,
	EventOwnerTemplatesDisabled:    CategoryCompliance,
	EventOwnerTemplatesRevoked:     CategoryCompliance,
	EventVerificationSucceeded:     CategoryOperations,
	EventVerificationFailed:        CategorySecurity,
	EventVerificationRateLimited:   CategorySecurity,
}

// Category returns the retention category for an event kind.
func (k EventKind) Category() EventCategory {
	if c, ok := eventCategories[k]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It carries ids
// and outcomes only; never raw template bytes, plaintext samples, or key
// material.
type Event struct {
	ID         uuid.UUID
	Kind       EventKind
	Timestamp  time.Time
	OwnerID    string
	TemplateID string
	ClientID   string
	ClientIP   string
	DeviceInfo string
	RequestID  string
	Similarity int
	Verified   bool
	Reason     string
	Count      int
}
