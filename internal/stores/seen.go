package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSeenRedisUnavailable = errors.New("seen redis unavailable")

// SeenStore tracks which network addresses an account has recently logged in
// from, backing the new-device notification. It keeps one Redis set per
// account whose TTL slides forward on every observation.
type SeenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSeenStore creates a [SeenStore] backed by the given Redis client.
func NewSeenStore(redisClient redis.UniversalClient, prefix string) *SeenStore {
	if prefix == "" {
		prefix = "seen"
	}
	return &SeenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SeenStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Observe records the address for the account and reports whether it was
// already known. The first address an account ever logs in from reads as
// unknown; callers decide whether that deserves a notification.
func (s *SeenStore) Observe(ctx context.Context, accountID, addr string, ttl time.Duration) (bool, error) {
	if addr == "" {
		return true, nil
	}

	var added *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, s.key(accountID), addr)
		pipe.Expire(ctx, s.key(accountID), ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSeenRedisUnavailable, err)
	}

	return added.Val() == 0, nil
}

// Forget drops the account's whole address set.
func (s *SeenStore) Forget(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSeenRedisUnavailable, err)
	}
	return nil
}
