// Package ratelimit limits how many commands a user may issue per window.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"telegram-points-bot/internal/config"
)

// Limiter decides whether a user may issue another command.
type Limiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
	// Prune drops expired bookkeeping.
	Prune(ctx context.Context) error
	Close() error
}

// New builds the limiter described by cfg: Redis-backed when an address is
// configured, in-memory otherwise.
func New(ctx context.Context, cfg *config.RateLimitConfig) (Limiter, error) {
	if cfg.RedisAddr == "" {
		return NewMemoryLimiter(cfg.Requests, cfg.Window), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.RedisAddr).Msg("Rate limiter using Redis")
	return NewRedisLimiter(client, cfg.Requests, cfg.Window), nil
}
