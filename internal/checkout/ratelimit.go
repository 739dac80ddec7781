package checkout

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRateLimit  = 5
	defaultRateWindow = time.Minute
)

type fixedWindowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RedisRateLimiter admits at most limit requests per key within each window.
type RedisRateLimiter struct {
	counter fixedWindowCounter
	limit   int64
	window  time.Duration
}

// NewRedisRateLimiter builds a limiter on top of the redis fixed-window counter.
func NewRedisRateLimiter(counter fixedWindowCounter, limit int, window time.Duration) (*RedisRateLimiter, error) {
	if counter == nil {
		return nil, fmt.Errorf("rate limit counter required")
	}
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RedisRateLimiter{counter: counter, limit: int64(limit), window: window}, nil
}

// Allow reports whether the request identified by key is within its window budget.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := l.counter.FixedWindowAllow(ctx, key, l.limit, l.window)
	if err != nil {
		return false, err
	}
	return allowed, nil
}
