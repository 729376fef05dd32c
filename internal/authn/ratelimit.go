package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles login attempts per IP address using a Redis
// INCR+EXPIRE counter, rejecting once the configured ceiling is exceeded
// within the window.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow increments the attempt counter for key and reports whether the
// caller is still under the limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("loginattempts:%s", key)

	count, err := rl.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	if count == 1 {
		if err := rl.rdb.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	return count <= rl.limit, nil
}

// Reset clears the attempt counter for key (called on successful login).
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.rdb.Del(ctx, fmt.Sprintf("loginattempts:%s", key)).Err()
}
