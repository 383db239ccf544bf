package store

import (
	"context"
	"sync"
	"time"
)

// window is one open counting window for a key.
type window struct {
	count   int64
	resetAt time.Time
}

// InMemoryCounterStore implements ratelimit.CounterStore with a mutex-guarded
// map. Adequate for a single instance; scaled deployments use RedisCounterStore.
type InMemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Incr opens a window on first use, increments while it is open, and starts
// a fresh window once resetAt has passed.
func (s *InMemoryCounterStore) Incr(ctx context.Context, key string, windowDur time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Reset clears the window for a key.
func (s *InMemoryCounterStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
