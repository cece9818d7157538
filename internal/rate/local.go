package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sweep idle buckets once the map grows past this size.
const localSweepThreshold = 4096

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Local is an in-process token-bucket [Limiter] for embedders that run a
// single engine instance without Redis. The budget refills continuously at
// MaxAttempts per Window instead of resetting on a window boundary.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
}

// NewLocal creates a [Local] limiter with the same attempt budget a
// [RedisWindow] would enforce.
func NewLocal(cfg Config) *Local {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Local{
		buckets: make(map[string]*localBucket),
		limit:   rate.Every(window / time.Duration(maxAttempts)),
		burst:   maxAttempts,
		idleTTL: 10 * window,
	}
}

// Allow consumes one attempt from the key's bucket.
func (l *Local) Allow(_ context.Context, key string) error {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > localSweepThreshold {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

// Reset drops the key's bucket, restoring the full budget.
func (l *Local) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

func (l *Local) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}
