package ward

import (
	"context"
	"fmt"
	"time"
)

// SessionInfo is the safe introspection view of one live refresh token.
// It intentionally excludes the secret hash and all token material.
type SessionInfo struct {
	TokenID   string
	ChainID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	AuditDropped   uint64
}

// ActiveSessions describes the activesessions operation and its observable behavior.
//
// ActiveSessions lists the account's live refresh tokens, one per device or
// client still able to rotate. Revoked and expired records are filtered out,
// so the result is what [Engine.LogoutEverywhere] would kill.
//
// ActiveSessions may return an error when input validation, dependency calls, or security checks fail.
// ActiveSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ActiveSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}

	records, err := e.tokens.ActiveRecords(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, SessionInfo{
			TokenID:   rec.ID.String(),
			ChainID:   rec.ChainID.String(),
			IssuedAt:  time.Unix(rec.IssuedAt, 0).UTC(),
			ExpiresAt: time.Unix(rec.ExpiresAt, 0).UTC(),
		})
	}

	return out, nil
}

// Health describes the health operation and its observable behavior.
//
// Health may return an error when input validation, dependency calls, or security checks fail.
// Health does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.tokens == nil {
		return HealthStatus{}
	}

	latency, err := e.tokens.Ping(ctx)
	status := HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
	if e.audit != nil {
		status.AuditDropped = e.audit.Dropped()
	}
	return status
}
