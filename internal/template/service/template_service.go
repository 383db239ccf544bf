package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"veriprint/internal/audit"
	"veriprint/internal/template/codec"
	"veriprint/internal/template/models"
	dErrors "veriprint/pkg/domain-errors"
	"veriprint/pkg/platform/sentinel"
	"veriprint/pkg/requestcontext"
)

// Candidate is a decrypted active template ready for matching. Sample is the
// only plaintext biometric material the service releases; callers wipe it
// with codec.Wipe as soon as matching completes.
type Candidate struct {
	Template *models.Template
	Sample   []byte
	Format   models.CaptureFormat
}

// Enroll seals a capture and persists it as an active template for the given
// owner and finger slot. An occupied slot surfaces as CodeDuplicateFinger;
// quality gating happens upstream in the enrollment orchestrator.
func (s *Service) Enroll(ctx context.Context, ownerID string, slot models.FingerSlot, capture models.Capture, quality int, meta models.EnrollMetadata) (*models.Template, error) {
	if err := requireOwnerID(ownerID); err != nil {
		return nil, err
	}
	if !slot.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "finger slot %d out of range", slot)
	}

	start := time.Now()
	now := requestcontext.Now(ctx)

	validFrom := meta.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}
	validUntil := meta.ValidUntil
	if validUntil.IsZero() && s.validity > 0 {
		validUntil = validFrom.Add(s.validity)
	}

	plaintext, err := codec.EncodeEnvelope(capture, now)
	if err != nil {
		return nil, err
	}
	defer codec.Wipe(plaintext)

	rec, err := s.sealer.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	t := &models.Template{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		FingerSlot:   slot,
		Record:       rec,
		Format:       capture.Format,
		QualityScore: quality,
		Status:       models.StatusActive,
		ValidFrom:    validFrom,
		ValidUntil:   validUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Insert(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeDuplicateFinger, "finger slot %d already enrolled", slot)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist template")
	}

	if s.metrics != nil {
		s.metrics.Enrolled.Inc()
		s.metrics.ObserveEnroll(start)
	}
	s.emit(ctx, audit.Event{
		Kind:       audit.EventTemplateEnrolled,
		OwnerID:    ownerID,
		TemplateID: t.ID.String(),
	})
	return t, nil
}

// ActiveCandidates returns the owner's active templates decrypted for
// matching, in enrollment order. A template whose checksum no longer matches
// is disabled on the spot and skipped; decryption failures are skipped
// without a status change since the key may only be temporarily unavailable.
// An owner with no active templates is CodeNotFound.
func (s *Service) ActiveCandidates(ctx context.Context, ownerID string) ([]Candidate, error) {
	if err := requireOwnerID(ownerID); err != nil {
		return nil, err
	}

	templates, err := s.store.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load templates")
	}
	if len(templates) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no active templates for owner")
	}

	var (
		candidates   []Candidate
		integrityHit bool
		lastErr      error
	)
	for _, t := range templates {
		plaintext, err := s.sealer.Decrypt(t.Record)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeIntegrity) {
				integrityHit = true
				s.disableCorrupt(ctx, t)
				continue
			}
			lastErr = err
			s.logger.WarnContext(ctx, "template decryption failed",
				"template_id", t.ID, "key_id", t.Record.KeyID, "error", err)
			continue
		}

		env, err := codec.DecodeEnvelope(plaintext)
		codec.Wipe(plaintext)
		if err != nil {
			integrityHit = true
			s.disableCorrupt(ctx, t)
			continue
		}

		candidates = append(candidates, Candidate{
			Template: t,
			Sample:   env.Sample,
			Format:   env.Format,
		})
	}

	if len(candidates) == 0 {
		if integrityHit {
			return nil, dErrors.New(dErrors.CodeIntegrity, "no usable templates for owner")
		}
		return nil, dErrors.Wrap(lastErr, dErrors.CodeDecryption, "no usable templates for owner")
	}
	return candidates, nil
}

// disableCorrupt takes a template out of rotation after a failed integrity
// check. The record is kept for forensics.
func (s *Service) disableCorrupt(ctx context.Context, t *models.Template) {
	now := requestcontext.Now(ctx)
	if err := s.store.SetStatus(ctx, t.ID, models.StatusDisabled, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to disable corrupt template",
			"template_id", t.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.IntegrityFailures.Inc()
	}
	s.logger.WarnContext(ctx, "template disabled after integrity failure",
		"template_id", t.ID, "owner_id", t.OwnerID)
	s.emit(ctx, audit.Event{
		Kind:       audit.EventTemplateDisabledIntegrity,
		OwnerID:    t.OwnerID,
		TemplateID: t.ID.String(),
		Reason:     "checksum mismatch",
	})
}

// Revoke permanently retires a template. Revoking an already revoked
// template is a no-op so retries are safe.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "template not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load template")
	}
	if t.Status == models.StatusRevoked {
		return nil
	}

	now := requestcontext.Now(ctx)
	if err := s.store.SetStatus(ctx, id, models.StatusRevoked, now); err != nil {
		// A concurrent revoke already retired the template.
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke template")
	}

	if s.metrics != nil {
		s.metrics.Revoked.Inc()
	}
	s.emit(ctx, audit.Event{
		Kind:       audit.EventTemplateRevoked,
		OwnerID:    t.OwnerID,
		TemplateID: id.String(),
	})
	return nil
}

// DisableOwner takes every active template for the owner out of rotation.
// Reversible via re-enrollment review; returns the number of templates
// affected.
func (s *Service) DisableOwner(ctx context.Context, ownerID string) (int, error) {
	return s.cascadeOwner(ctx, ownerID, models.StatusDisabled, audit.EventOwnerTemplatesDisabled)
}

// RevokeOwner permanently retires every active template for the owner.
func (s *Service) RevokeOwner(ctx context.Context, ownerID string) (int, error) {
	return s.cascadeOwner(ctx, ownerID, models.StatusRevoked, audit.EventOwnerTemplatesRevoked)
}

func (s *Service) cascadeOwner(ctx context.Context, ownerID string, status models.TemplateStatus, kind audit.EventKind) (int, error) {
	if err := requireOwnerID(ownerID); err != nil {
		return 0, err
	}

	now := requestcontext.Now(ctx)
	changed, err := s.store.SetOwnerStatus(ctx, ownerID, status, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "update owner templates")
	}
	if changed > 0 {
		s.emit(ctx, audit.Event{
			Kind:    kind,
			OwnerID: ownerID,
			Count:   changed,
		})
	}
	return changed, nil
}

// SweepExpired marks active templates past their validity window as expired.
// Safe to run concurrently and on a schedule.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	swept, err := s.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "sweep expired templates")
	}
	if swept > 0 {
		if s.metrics != nil {
			s.metrics.SweptExpired.Add(float64(swept))
		}
		s.logger.InfoContext(ctx, "expired templates swept", "count", swept)
		s.emit(ctx, audit.Event{
			Kind:  audit.EventTemplatesExpired,
			Count: swept,
		})
	}
	return swept, nil
}

// RecordVerification folds a verification outcome into the template's usage
// counters. Failures are logged and swallowed; stats must never fail a
// verification that already completed.
func (s *Service) RecordVerification(ctx context.Context, id uuid.UUID, verified bool, durationMs float64) {
	now := requestcontext.Now(ctx)
	if err := s.store.RecordVerification(ctx, id, verified, durationMs, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to record verification stats",
			"template_id", id, "error", err)
	}
}

func requireOwnerID(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "owner id is required")
	}
	return nil
}
