// Package service owns the template lifecycle: enrollment persistence,
// candidate retrieval for matching, revocation, owner-level cascades, and
// expiry sweeps. All biometric data crosses this package encrypted; the only
// plaintext it hands out is the short-lived candidate sample, which callers
// wipe after matching.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veriprint/internal/audit"
	"veriprint/internal/template/metrics"
	"veriprint/internal/template/models"
)

// Store is the persistence surface the service requires. Both the in-memory
// and Postgres stores satisfy it.
type Store interface {
	Insert(ctx context.Context, t *models.Template) error
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	FindActiveByOwner(ctx context.Context, ownerID string) ([]*models.Template, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.TemplateStatus, at time.Time) error
	SetOwnerStatus(ctx context.Context, ownerID string, status models.TemplateStatus, at time.Time) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	RecordVerification(ctx context.Context, id uuid.UUID, succeeded bool, durationMs float64, at time.Time) error
}

// Sealer encrypts and decrypts at-rest records.
type Sealer interface {
	Encrypt(plaintext []byte) (models.EncryptedRecord, error)
	Decrypt(rec models.EncryptedRecord) ([]byte, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service orchestrates template lifecycle operations.
type Service struct {
	store    Store
	sealer   Sealer
	validity time.Duration
	logger   *slog.Logger
	audit    AuditPublisher
	metrics  *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. validity is the default template validity window
// applied when enrollment metadata does not set one.
func New(store Store, sealer Sealer, validity time.Duration, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sealer:   sealer,
		validity: validity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}
