package ward

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/wardauth/ward/internal"
	"github.com/wardauth/ward/internal/stores"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset issues a single-use, time-boxed reset challenge and
// hands the bearer token to the notifier for delivery. An unknown email is a
// silent success: the caller cannot tell registered addresses from
// unregistered ones, and the unknown path is padded so its latency lands in
// the same band as a real issue. Requests are throttled per email and per
// caller address; an exhausted window returns [ErrRateLimited].
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
//	Security: only the challenge secret's hash is stored; the full token
//	exists in the notifier call and nowhere else.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.resetStore == nil {
		return ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalid
	}

	// Throttled ahead of the lookup so address probing across many emails
	// burns budget whether or not they resolve.
	if err := e.resetThrottle.Allow(ctx, email, ClientIPFromContext(ctx)); err != nil {
		return e.rejectThrottled(ctx, AuditPasswordResetRequest, err)
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		e.emitAudit(ctx, AuditPasswordResetRequest, false, "", nil, func() map[string]string {
			return map[string]string{"email": email, "reason": "unknown_email"}
		})
		sleepEnumerationDelay(ctx)
		return nil
	}

	challengeID := uuid.New()
	secret, err := internal.NewChallengeSecret()
	if err != nil {
		return err
	}

	now := time.Now()
	record := &stores.ChallengeRecord{
		AccountID:  acct.ID,
		SecretHash: internal.HashChallengeSecret(secret),
		ExpiresAt:  now.Add(e.config.Reset.TTL).Unix(),
	}
	if err := e.resetStore.Save(ctx, challengeID.String(), record, e.config.Reset.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token := internal.EncodeChallengeToken(challengeID, secret)
	if err := e.notifier.PasswordResetRequested(ctx, acct.Email, token); err != nil {
		e.warn("password-reset delivery failed", err)
	}

	e.emitAudit(ctx, AuditPasswordResetRequest, true, acct.ID, nil, nil)
	return nil
}

// ConfirmPasswordReset describes the confirmpasswordreset operation and its observable behavior.
//
// ConfirmPasswordReset consumes a reset challenge and installs the new
// password. The challenge is single use: a correct confirmation burns it, a
// wrong secret burns one attempt, and the attempt cap burns the challenge
// outright. Consumption proves mailbox control, so the failed-attempt
// counter and any active lockout are cleared alongside the new digest, and
// every refresh chain is revoked.
//
// ConfirmPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// ConfirmPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPass string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.resetStore == nil {
		return ErrEngineNotReady
	}

	// Address dimension only: per-challenge attempt caps live on the stored
	// record, so the throttle's job here is challenge-ID spraying.
	if err := e.resetThrottle.Allow(ctx, "", ClientIPFromContext(ctx)); err != nil {
		return e.rejectThrottled(ctx, AuditPasswordReset, err)
	}

	challengeID, secret, err := internal.DecodeChallengeToken(token)
	if err != nil {
		return ErrTokenInvalid
	}

	record, err := e.resetStore.Consume(ctx, challengeID.String(), internal.HashChallengeSecret(secret), e.config.Reset.MaxAttempts)
	if err != nil {
		return e.rejectChallenge(ctx, AuditPasswordReset, err)
	}

	digest, err := e.passwordHash.Hash(newPass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	acct, err := e.store.FindByID(ctx, record.AccountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		return ErrTokenInvalid
	}

	_, err = e.applyAccountUpdate(ctx, acct, func(a *Account) {
		a.PasswordHash = digest
		a.FailedAttempts = 0
		a.LockedUntil = nil
	})
	if err != nil {
		return err
	}

	e.revokeAllTokens(ctx, acct.ID)
	e.emitAudit(ctx, AuditPasswordReset, true, acct.ID, nil, nil)
	return nil
}

// rejectChallenge maps a challenge-store failure onto the engine's error
// surface. Unknown, expired, burnt, and mismatched challenges all answer
// ErrTokenInvalid; the audit stream keeps the distinction.
func (e *Engine) rejectChallenge(ctx context.Context, eventType string, err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound),
		errors.Is(err, stores.ErrChallengeSecretMismatch),
		errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		e.emitAudit(ctx, eventType, false, "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": challengeRejectReason(err)}
		})
		return ErrTokenInvalid
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func challengeRejectReason(err error) string {
	switch {
	case errors.Is(err, stores.ErrChallengeSecretMismatch):
		return "secret_mismatch"
	case errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		return "attempts_exceeded"
	default:
		return "unknown_challenge"
	}
}

// sleepEnumerationDelay pads the unknown-email path with 20-40ms of jitter,
// the cost band of the hash and store work the path skipped.
func sleepEnumerationDelay(ctx context.Context) {
	n, err := rand.Int(rand.Reader, big.NewInt(21))
	if err != nil {
		return
	}

	timer := time.NewTimer(time.Duration(20+n.Int64()) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
