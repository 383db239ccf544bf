package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"veriprint/internal/template/models"
	"veriprint/pkg/platform/sentinel"
)

// InMemoryStore keeps templates in a mutex-guarded map. It mirrors the
// Postgres store's semantics, including the one-ACTIVE-per-slot constraint,
// so services behave identically against either.
type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*models.Template
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{templates: make(map[uuid.UUID]*models.Template)}
}

func (s *InMemoryStore) Insert(ctx context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return fmt.Errorf("template %s: %w", t.ID, sentinel.ErrConflict)
	}
	if t.Status == models.StatusActive {
		for _, existing := range s.templates {
			if existing.OwnerID == t.OwnerID && existing.FingerSlot == t.FingerSlot && existing.Status == models.StatusActive {
				return fmt.Errorf("active template for slot %d: %w", t.FingerSlot, sentinel.ErrConflict)
			}
		}
	}

	clone := *t
	s.templates[t.ID] = &clone
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, sentinel.ErrNotFound)
	}
	clone := *t
	return &clone, nil
}

func (s *InMemoryStore) FindActiveByOwner(ctx context.Context, ownerID string) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Template
	for _, t := range s.templates {
		if t.OwnerID == ownerID && t.Status == models.StatusActive {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *InMemoryStore) SetStatus(ctx context.Context, id uuid.UUID, status models.TemplateStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %s: %w", id, sentinel.ErrNotFound)
	}
	// Revocation is terminal.
	if t.Status == models.StatusRevoked {
		return fmt.Errorf("template %s is revoked: %w", id, sentinel.ErrInvalidState)
	}
	t.Status = status
	t.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) SetOwnerStatus(ctx context.Context, ownerID string, status models.TemplateStatus, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, t := range s.templates {
		if t.OwnerID == ownerID && t.Status == models.StatusActive {
			t.Status = status
			t.UpdatedAt = at
			changed++
		}
	}
	return changed, nil
}

func (s *InMemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, t := range s.templates {
		if t.Status == models.StatusActive && t.Expired(now) {
			t.Status = models.StatusExpired
			t.UpdatedAt = now
			swept++
		}
	}
	return swept, nil
}

func (s *InMemoryStore) RecordVerification(ctx context.Context, id uuid.UUID, succeeded bool, durationMs float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %s: %w", id, sentinel.ErrNotFound)
	}
	t.VerificationCount++
	if succeeded {
		t.SuccessfulVerifications++
	}
	t.AvgVerificationMs += (durationMs - t.AvgVerificationMs) / float64(t.VerificationCount)
	ts := at
	t.LastVerificationAt = &ts
	t.UpdatedAt = at
	return nil
}
