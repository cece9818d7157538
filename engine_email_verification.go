package ward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardauth/ward/internal"
	"github.com/wardauth/ward/internal/stores"
)

// RequestEmailVerification describes the requestemailverification operation and its observable behavior.
//
// RequestEmailVerification issues a single-use verification challenge for the
// account's email and hands the bearer token to the notifier. An already
// verified account is a no-op success so callers can retrigger the flow
// without first reading account state.
//
// RequestEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// RequestEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestEmailVerification(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.verificationStore == nil {
		return ErrEngineNotReady
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return nil
	}

	// Meters challenge issuance, not lookups: already-verified accounts
	// returned above without burning budget.
	if err := e.verificationThrottle.Allow(ctx, acct.ID, ClientIPFromContext(ctx)); err != nil {
		return e.rejectThrottled(ctx, AuditVerificationRequest, err)
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
		ExpiresAt:  now.Add(e.config.Verification.TTL).Unix(),
	}
	if err := e.verificationStore.Save(ctx, challengeID.String(), record, e.config.Verification.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token := internal.EncodeChallengeToken(challengeID, secret)
	if err := e.notifier.EmailVerificationRequested(ctx, acct.Email, token); err != nil {
		e.warn("email-verification delivery failed", err)
	}

	e.emitAudit(ctx, AuditVerificationRequest, true, acct.ID, nil, nil)
	return nil
}

// ConfirmEmailVerification describes the confirmemailverification operation and its observable behavior.
//
// ConfirmEmailVerification consumes a verification challenge and marks the
// account's email verified. Sessions are untouched: verification adds a claim
// about the mailbox, it does not rotate credentials.
//
// ConfirmEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// ConfirmEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.verificationStore == nil {
		return ErrEngineNotReady
	}

	if err := e.verificationThrottle.Allow(ctx, "", ClientIPFromContext(ctx)); err != nil {
		return e.rejectThrottled(ctx, AuditEmailVerified, err)
	}

	challengeID, secret, err := internal.DecodeChallengeToken(token)
	if err != nil {
		return ErrTokenInvalid
	}

	record, err := e.verificationStore.Consume(ctx, challengeID.String(), internal.HashChallengeSecret(secret), e.config.Verification.MaxAttempts)
	if err != nil {
		return e.rejectChallenge(ctx, AuditEmailVerified, err)
	}

	acct, err := e.store.FindByID(ctx, record.AccountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		return ErrTokenInvalid
	}
	if acct.EmailVerified {
		return nil
	}

	_, err = e.applyAccountUpdate(ctx, acct, func(a *Account) {
		a.EmailVerified = true
	})
	if err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEmailVerified, true, acct.ID, nil, nil)
	return nil
}
