package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wardauth/ward/internal/rate"
)

// Policy says which dimensions of a flow are throttled and how much budget
// each key gets per window.
type Policy struct {
	// PerSubject throttles the flow's natural key: the email being
	// registered or reset, or the account requesting verification.
	PerSubject bool

	// PerAddress throttles the caller address the engine extracted from the
	// request context. Calls without an address skip this dimension.
	PerAddress bool

	MaxAttempts int
	Window      time.Duration
}

func (p Policy) enabled() bool {
	return p.PerSubject || p.PerAddress
}

// Throttle meters one account-management flow. Each enabled dimension is an
// independent fixed window; a call must clear every enabled window, and the
// first exhausted one rejects.
type Throttle struct {
	subject rate.Limiter
	address rate.Limiter
}

// NewRedis builds a Redis-backed [Throttle] for the named flow. The flow name
// namespaces the windows, so two flows never share budget. Returns nil when
// the policy enables no dimension; a nil Throttle admits everything.
func NewRedis(client redis.UniversalClient, flow string, p Policy) *Throttle {
	if !p.enabled() {
		return nil
	}
	t := &Throttle{}
	if p.PerSubject {
		t.subject = rate.NewRedisWindow(client, rate.Config{
			MaxAttempts: p.MaxAttempts,
			Window:      p.Window,
			KeyPrefix:   "thr:" + flow + ":s",
		})
	}
	if p.PerAddress {
		t.address = rate.NewRedisWindow(client, rate.Config{
			MaxAttempts: p.MaxAttempts,
			Window:      p.Window,
			KeyPrefix:   "thr:" + flow + ":a",
		})
	}
	return t
}

// NewLocal builds an in-process [Throttle] with the same budget semantics for
// single-instance embedders. The budget refills continuously instead of
// resetting on window boundaries.
func NewLocal(p Policy) *Throttle {
	if !p.enabled() {
		return nil
	}
	cfg := rate.Config{MaxAttempts: p.MaxAttempts, Window: p.Window}
	t := &Throttle{}
	if p.PerSubject {
		t.subject = rate.NewLocal(cfg)
	}
	if p.PerAddress {
		t.address = rate.NewLocal(cfg)
	}
	return t
}

// Allow consumes one attempt from every enabled window. Budget exhaustion
// rejects with [rate.ErrRateLimited]; Redis trouble surfaces as
// [rate.ErrRedisUnavailable]. An empty subject or address skips that
// dimension rather than pooling unrelated callers under one key.
func (t *Throttle) Allow(ctx context.Context, subject, address string) error {
	if t == nil {
		return nil
	}
	if t.subject != nil && subject != "" {
		if err := t.subject.Allow(ctx, subject); err != nil {
			return err
		}
	}
	if t.address != nil && address != "" {
		if err := t.address.Allow(ctx, address); err != nil {
			return err
		}
	}
	return nil
}
