package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"veriprint/internal/template/models"
	"veriprint/pkg/platform/sentinel"
)

// PostgresStore persists templates in PostgreSQL. This store is pure I/O —
// lifecycle rules live in the template service.
//
// Uniqueness of ACTIVE templates per (owner_id, finger_slot) is enforced by
// a partial unique index, so concurrent check-then-insert races resolve at
// the database and surface here as sentinel.ErrConflict:
//
//	CREATE UNIQUE INDEX templates_active_owner_slot
//	    ON templates (owner_id, finger_slot) WHERE status = 'ACTIVE';
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const templateColumns = `
	id, owner_id, finger_slot, ciphertext, nonce, key_id, checksum, format,
	quality_score, status, valid_from, valid_until, verification_count,
	successful_verifications, avg_verification_ms, last_verification_at,
	created_at, updated_at
`

func (s *PostgresStore) Insert(ctx context.Context, t *models.Template) error {
	query := `
		INSERT INTO templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	var validUntil *time.Time
	if !t.ValidUntil.IsZero() {
		validUntil = &t.ValidUntil
	}
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		int(t.FingerSlot),
		t.Record.Ciphertext,
		t.Record.Nonce,
		t.Record.KeyID,
		t.Record.Checksum,
		t.Format.String(),
		t.QualityScore,
		t.Status.String(),
		t.ValidFrom,
		validUntil,
		t.VerificationCount,
		t.SuccessfulVerifications,
		t.AvgVerificationMs,
		t.LastVerificationAt,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("active template for slot %d: %w", t.FingerSlot, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) FindActiveByOwner(ctx context.Context, ownerID string) ([]*models.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE owner_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find active templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status models.TemplateStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET status = $2, updated_at = $3 WHERE id = $1 AND status <> 'REVOKED'`,
		id, status.String(), at,
	)
	if err != nil {
		return fmt.Errorf("set template status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set template status: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a revoked one. Revocation is
		// terminal.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("set template status: %w", err)
		}
		if exists {
			return fmt.Errorf("template %s is revoked: %w", id, sentinel.ErrInvalidState)
		}
		return fmt.Errorf("template %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetOwnerStatus(ctx context.Context, ownerID string, status models.TemplateStatus, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET status = $2, updated_at = $3 WHERE owner_id = $1 AND status = 'ACTIVE'`,
		ownerID, status.String(), at,
	)
	if err != nil {
		return 0, fmt.Errorf("set owner templates status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set owner templates status: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'ACTIVE' AND valid_until IS NOT NULL AND valid_until < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired templates: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired templates: %w", err)
	}
	return int(affected), nil
}

// RecordVerification folds the duration into the running average atomically
// so concurrent verifications cannot lose counter updates.
func (s *PostgresStore) RecordVerification(ctx context.Context, id uuid.UUID, succeeded bool, durationMs float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates SET
			verification_count = verification_count + 1,
			successful_verifications = successful_verifications + CASE WHEN $2 THEN 1 ELSE 0 END,
			avg_verification_ms = avg_verification_ms + ($3 - avg_verification_ms) / (verification_count + 1),
			last_verification_at = $4,
			updated_at = $4
		WHERE id = $1
	`, id, succeeded, durationMs, at)
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("template %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		t          models.Template
		slot       int
		format     string
		status     string
		validUntil sql.NullTime
		lastAt     sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&slot,
		&t.Record.Ciphertext,
		&t.Record.Nonce,
		&t.Record.KeyID,
		&t.Record.Checksum,
		&format,
		&t.QualityScore,
		&status,
		&t.ValidFrom,
		&validUntil,
		&t.VerificationCount,
		&t.SuccessfulVerifications,
		&t.AvgVerificationMs,
		&lastAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.FingerSlot = models.FingerSlot(slot)
	t.Format = models.CaptureFormat(format)
	t.Status = models.TemplateStatus(status)
	if validUntil.Valid {
		t.ValidUntil = validUntil.Time
	}
	if lastAt.Valid {
		ts := lastAt.Time
		t.LastVerificationAt = &ts
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
