package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter keyed by identifier+action. Counters live
// in Redis with an explicit TTL so the limit holds across replicas and
// restarts.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewLimiter(client *redis.Client, limit int64, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow increments the counter for (identifier, action) in the current window
// and reports whether the caller is within the limit. Errors fail open: a
// Redis outage must not take exams down with it.
func (l *Limiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	window := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("rl:%s:%s:%d", action, identifier, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return count.Val() <= l.limit, nil
}
