package ward

import (
	"context"
	"time"
)

// UnlockAccount describes the unlockaccount operation and its observable behavior.
//
// UnlockAccount clears an account's lockout window and failed-attempt counter
// ahead of its natural expiry. This is the support-desk override for a user
// locked out of their own account; an account that is not locked unlocks as a
// no-op.
//
// UnlockAccount may return an error when input validation, dependency calls, or security checks fail.
// UnlockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if acct.LockedUntil == nil && acct.FailedAttempts == 0 {
		return nil
	}

	_, err = e.applyAccountUpdate(ctx, acct, func(a *Account) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
	})
	if err != nil {
		e.emitAudit(ctx, AuditAccountUnlocked, false, acct.ID, err, nil)
		return err
	}

	e.metrics.inc(MetricAdminUnlocks)
	e.emitAudit(ctx, AuditAccountUnlocked, true, acct.ID, nil, nil)
	return nil
}

// LockAccount describes the lockaccount operation and its observable behavior.
//
// LockAccount imposes a lockout window by administrative decision rather than
// failed attempts: every login is rejected with [ErrAccountLocked] until the
// given time. The account's refresh chains are revoked in the same move, so
// sessions opened before the lock cannot keep rotating through it. A time in
// the past returns [ErrInvalid].
//
// LockAccount may return an error when input validation, dependency calls, or security checks fail.
// LockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LockAccount(ctx context.Context, accountID string, until time.Time) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !until.After(time.Now()) {
		return ErrInvalid
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}

	_, err = e.applyAccountUpdate(ctx, acct, func(a *Account) {
		lockedUntil := until
		a.LockedUntil = &lockedUntil
	})
	if err != nil {
		e.emitAudit(ctx, AuditAccountLocked, false, acct.ID, err, nil)
		return err
	}

	e.revokeAllTokens(ctx, acct.ID)

	e.metrics.inc(MetricAdminLocks)
	e.emitAudit(ctx, AuditAccountLocked, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"until": until.UTC().Format(time.RFC3339)}
	})
	return nil
}
