package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter meters second-factor guesses. Every Allow call consumes one
// attempt; Reset clears the budget after a success so legitimate users are
// never throttled by their own earlier typos.
type Limiter interface {
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// RedisWindow is a fixed-window counter shared across engine instances.
type RedisWindow struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisWindow creates a [RedisWindow] backed by the given Redis client.
func NewRedisWindow(redisClient redis.UniversalClient, cfg Config) *RedisWindow {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "2fa"
	}
	return &RedisWindow{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *RedisWindow) key(id string) string {
	return l.config.KeyPrefix + ":" + id
}

// Allow consumes one attempt and rejects with [ErrRateLimited] once the
// window budget is spent.
func (l *RedisWindow) Allow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(key), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

// Reset clears the window counter.
func (l *RedisWindow) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
