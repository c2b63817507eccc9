package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "points:ratelimit:"

// The expiry is only set by the first request so the window stays anchored.
var allowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter is a fixed window limiter shared by every bot instance
// pointing at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter allows limit requests per user per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow increments the user's counter for the current window.
func (rl *RedisLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	key := keyPrefix + strconv.FormatInt(userID, 10)

	n, err := allowScript.Run(ctx, rl.client, []string{key}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	return n <= int64(rl.limit), nil
}

// Prune is a no-op: counters expire on their own.
func (rl *RedisLimiter) Prune(context.Context) error { return nil }

// Close closes the Redis client.
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
