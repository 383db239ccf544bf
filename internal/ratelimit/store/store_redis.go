package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implements ratelimit.CounterStore on a shared Redis so
// multiple service instances enforce one combined limit per key. INCR plus
// EXPIRE on first increment gives the window-from-first-use semantics; Redis
// serializes the increments.
type RedisCounterStore struct {
	client redis.Cmdable
}

func NewRedisCounterStore(client redis.Cmdable) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// Counter without a deadline (EXPIRE raced or failed earlier); pin
		// one now so the key cannot leak.
		ttl = window
		_ = s.client.Expire(ctx, key, window).Err()
	}
	return count, time.Now().Add(ttl), nil
}

func (s *RedisCounterStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
