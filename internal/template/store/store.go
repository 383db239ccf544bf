package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"veriprint/internal/template/models"
)

// Store persists templates. Implementations return sentinel errors for
// infrastructure facts (sentinel.ErrNotFound, sentinel.ErrConflict); the
// template service translates them into domain errors.
//
// Insert must enforce at most one ACTIVE template per (owner, slot) at the
// storage level — the Postgres implementation uses a partial unique index so
// concurrent enrollments across instances cannot both win.
type Store interface {
	Insert(ctx context.Context, t *models.Template) error
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	// FindActiveByOwner returns ACTIVE templates ordered by (created_at, id)
	// so candidate order, and therefore best-match tie-breaking, is stable.
	FindActiveByOwner(ctx context.Context, ownerID string) ([]*models.Template, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.TemplateStatus, at time.Time) error
	// SetOwnerStatus transitions all ACTIVE templates of an owner and
	// returns how many changed.
	SetOwnerStatus(ctx context.Context, ownerID string, status models.TemplateStatus, at time.Time) (int, error)
	// SweepExpired transitions ACTIVE templates whose validity window has
	// passed to EXPIRED and returns the count.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// RecordVerification bumps the attempt counters and folds durationMs
	// into the running average with an incremental mean update.
	RecordVerification(ctx context.Context, id uuid.UUID, succeeded bool, durationMs float64, at time.Time) error
}
