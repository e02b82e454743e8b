package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter is a Redis-backed fixed-window rate limiter. Shared state in Redis
// keeps the limit consistent across instances.
type Limiter struct {
	rdb      *redis.Client
	requests int
	window   time.Duration
	prefix   string
}

func NewLimiter(rdb *redis.Client, requests int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, requests: requests, window: window, prefix: "ratelimit:public"}
}

// Allow increments the caller's window counter and reports whether the
// request is within quota. On Redis failure it fails open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(l.requests), nil
}

// Remaining reports how much quota is left in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.rdb.Get(ctx, redisKey).Int()
	if err == redis.Nil {
		return l.requests, nil
	} else if err != nil {
		return 0, err
	}

	remaining := l.requests - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
