package models

import (
	"time"

	"github.com/google/uuid"
)

// TemplateStatus is the lifecycle state of an enrolled template.
type TemplateStatus string

const (
	// StatusActive templates participate in matching.
	StatusActive TemplateStatus = "ACTIVE"
	// StatusDisabled templates failed an integrity or decryption check, or
	// were disabled by an owner-level cascade. Reversible.
	StatusDisabled TemplateStatus = "DISABLED"
	// StatusRevoked templates were explicitly deleted. Terminal; the record
	// is retained for audit and excluded from all future matching.
	StatusRevoked TemplateStatus = "REVOKED"
	// StatusExpired templates passed their validity window.
	StatusExpired TemplateStatus = "EXPIRED"
)

// IsValid checks if the status is one of the supported enum values.
func (s TemplateStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

func (s TemplateStatus) String() string { return string(s) }

// CaptureFormat is the transport encoding of a scanner capture.
type CaptureFormat string

const (
	FormatRaw      CaptureFormat = "RAW"
	FormatANSI378  CaptureFormat = "ANSI_378"
	FormatISO19794 CaptureFormat = "ISO_19794_2"
	FormatImagePNG CaptureFormat = "IMAGE_PNG"
	FormatImageWSQ CaptureFormat = "IMAGE_WSQ"
)

// IsValid checks the format against the supported allow-list.
func (f CaptureFormat) IsValid() bool {
	switch f {
	case FormatRaw, FormatANSI378, FormatISO19794, FormatImagePNG, FormatImageWSQ:
		return true
	}
	return false
}

func (f CaptureFormat) String() string { return string(f) }

// FingerSlot is one of the ten anatomical finger positions (0-9).
type FingerSlot int

// IsValid reports whether the slot is in range.
func (s FingerSlot) IsValid() bool { return s >= 0 && s <= 9 }

// EncryptedRecord is the only at-rest representation of biometric data.
// The AEAD tag rides inside Ciphertext; Checksum is an independent hash of
// the plaintext for tamper detection after decryption.
type EncryptedRecord struct {
	Ciphertext []byte
	Nonce      []byte
	KeyID      string
	Checksum   []byte
}

// Template is an enrolled, encrypted biometric reference for one owner and
// one finger slot.
type Template struct {
	ID           uuid.UUID
	OwnerID      string
	FingerSlot   FingerSlot
	Record       EncryptedRecord
	Format       CaptureFormat
	QualityScore int
	Status       TemplateStatus

	ValidFrom  time.Time
	ValidUntil time.Time

	VerificationCount       int64
	SuccessfulVerifications int64
	AvgVerificationMs       float64
	LastVerificationAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the validity window has passed at the given time.
func (t *Template) Expired(now time.Time) bool {
	return !t.ValidUntil.IsZero() && t.ValidUntil.Before(now)
}

// Capture is a raw scan submitted for enrollment or verification. Never
// persisted in this form.
type Capture struct {
	Data   []byte
	Format CaptureFormat
}

// EnrollMetadata carries optional enrollment context supplied by the caller.
type EnrollMetadata struct {
	ValidFrom  time.Time
	ValidUntil time.Time
}
