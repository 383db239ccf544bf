package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about stored templates, not validation
// failures:
// - ErrNotFound: template does not exist in the store
// - ErrConflict: a storage uniqueness constraint rejected the write
// - ErrInvalidState: template status does not permit the transition
// - ErrUnavailable: backing store temporarily unreachable
//
// For input validation use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
