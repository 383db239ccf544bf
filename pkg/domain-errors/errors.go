// Package domainerrors defines the typed error vocabulary shared by all
// veriprint services. Services create or wrap errors with a Code; transports
// and callers branch on HasCode without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for propagation and transport mapping.
type Code string

const (
	// CodeValidation marks malformed or out-of-range input. Not retryable.
	CodeValidation Code = "validation"
	// CodeRateLimited marks a caller that exceeded its attempt window.
	CodeRateLimited Code = "rate_limited"
	// CodeNotFound marks a missing entity (no active templates, unknown id).
	CodeNotFound Code = "not_found"
	// CodeDuplicateFinger marks an enrollment conflict on an occupied slot.
	CodeDuplicateFinger Code = "duplicate_finger"
	// CodeLowQuality marks an enrollment capture below the quality gate.
	CodeLowQuality Code = "low_quality"
	// CodeExtraction marks a capture too degenerate to extract features from.
	CodeExtraction Code = "extraction_failed"
	// CodeDecryption marks an AEAD open failure (bad tag, missing key).
	CodeDecryption Code = "decryption_failed"
	// CodeIntegrity marks a plaintext checksum mismatch after decryption.
	CodeIntegrity Code = "integrity_failed"
	// CodeConflict marks a state transition rejected by the current status.
	CodeConflict Code = "conflict"
	// CodeInternal marks infrastructure failures. Descriptions stay internal.
	CodeInternal Code = "internal"
)

// Error carries a code, a safe human message, and an optional cause.
type Error struct {
	ErrCode Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{ErrCode: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{ErrCode: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{ErrCode: code, Message: message, Cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.ErrCode == code {
			return true
		}
		err = de.Cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.ErrCode
	}
	return CodeInternal
}

// Is delegates to the standard library so sentinel comparisons keep working
// through wrapped domain errors.
func Is(err, target error) bool { return errors.Is(err, target) }
