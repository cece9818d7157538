package rate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newWindowTest(t *testing.T, max int, window time.Duration) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisWindow(client, Config{
		MaxAttempts: max,
		Window:      window,
		KeyPrefix:   "2fa",
	}), mr
}

func TestRedisWindowBudget(t *testing.T) {
	limiter, _ := newWindowTest(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "acct-1"); err != nil {
			t.Fatalf("attempt %d within budget rejected: %v", i+1, err)
		}
	}

	if err := limiter.Allow(ctx, "acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A different key has its own budget.
	if err := limiter.Allow(ctx, "acct-2"); err != nil {
		t.Fatalf("unrelated key rejected: %v", err)
	}
}

func TestRedisWindowExpiry(t *testing.T) {
	limiter, mr := newWindowTest(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "acct-1"); err != nil {
		t.Fatalf("first attempt rejected: %v", err)
	}
	if err := limiter.Allow(ctx, "acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.Allow(ctx, "acct-1"); err != nil {
		t.Fatalf("attempt after window rejected: %v", err)
	}
}

func TestRedisWindowReset(t *testing.T) {
	limiter, _ := newWindowTest(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "acct-1"); err != nil {
		t.Fatalf("first attempt rejected: %v", err)
	}
	if err := limiter.Reset(ctx, "acct-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := limiter.Allow(ctx, "acct-1"); err != nil {
		t.Fatalf("attempt after reset rejected: %v", err)
	}
}

func TestRedisWindowUnavailable(t *testing.T) {
	limiter, mr := newWindowTest(t, 1, time.Minute)
	mr.Close()

	if err := limiter.Allow(context.Background(), "acct-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestLocalBudgetAndReset(t *testing.T) {
	limiter := NewLocal(Config{MaxAttempts: 3, Window: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "acct-1"); err != nil {
			t.Fatalf("attempt %d within budget rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if err := limiter.Allow(ctx, "acct-2"); err != nil {
		t.Fatalf("unrelated key rejected: %v", err)
	}

	if err := limiter.Reset(ctx, "acct-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := limiter.Allow(ctx, "acct-1"); err != nil {
		t.Fatalf("attempt after reset rejected: %v", err)
	}
}

func TestLocalSweepDropsIdleBuckets(t *testing.T) {
	limiter := NewLocal(Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < localSweepThreshold+1; i++ {
		if err := limiter.Allow(ctx, fmt.Sprintf("key-%d", i)); err != nil {
			t.Fatalf("Allow key-%d: %v", i, err)
		}
	}

	// Age every bucket past the idle TTL, then trip a sweep with one more
	// Allow on a fresh key.
	limiter.mu.Lock()
	stale := time.Now().Add(-limiter.idleTTL - time.Minute)
	for _, b := range limiter.buckets {
		b.lastSeen = stale
	}
	limiter.mu.Unlock()

	if err := limiter.Allow(ctx, "fresh"); err != nil {
		t.Fatalf("Allow fresh: %v", err)
	}

	limiter.mu.Lock()
	size := len(limiter.buckets)
	limiter.mu.Unlock()
	if size != 1 {
		t.Fatalf("sweep left %d buckets, want 1", size)
	}
}
