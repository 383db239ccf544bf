// Package ratelimit bounds verification and enrollment attempts per
// (client, owner) pair in a sliding time window. The counter lives behind
// the CounterStore interface so a single instance can use the in-memory
// store while a horizontally scaled deployment substitutes the Redis one
// without touching the orchestrators.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dErrors "veriprint/pkg/domain-errors"
)

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CounterStore is a windowed counter. Incr initializes the window on first
// use, increments while it is open, and resets it once it elapses.
// Implementations must be safe for concurrent increments on the same key.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

// Limiter enforces the configured maximum over a CounterStore.
type Limiter struct {
	store  CounterStore
	max    int
	window time.Duration
	logger *slog.Logger
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func New(store CounterStore, max int, window time.Duration, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if max < 1 {
		return nil, fmt.Errorf("rate limit max must be >= 1")
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive")
	}
	l := &Limiter{store: store, max: max, window: window}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow increments the counter for (clientID, ownerID) and fails with a
// rate_limited error once the count exceeds the configured maximum.
func (l *Limiter) Allow(ctx context.Context, clientID, ownerID string) (*Result, error) {
	key := Key(clientID, ownerID)
	count, resetAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit counter unavailable")
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := &Result{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !res.Allowed {
		if l.logger != nil {
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"client_id", clientID,
				"owner_id", ownerID,
				"count", count,
				"limit", l.max,
			)
		}
		return res, dErrors.Newf(dErrors.CodeRateLimited, "too many attempts, retry after %s", time.Until(resetAt).Round(time.Second))
	}
	return res, nil
}

// Reset clears the window for (clientID, ownerID).
func (l *Limiter) Reset(ctx context.Context, clientID, ownerID string) error {
	return l.store.Reset(ctx, Key(clientID, ownerID))
}

// Key builds the counter key for a (client, owner) pair.
func Key(clientID, ownerID string) string {
	return "vrl:" + clientID + ":" + ownerID
}
