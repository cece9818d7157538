package ward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wardauth/ward/internal/rate"
)

// SetupSecondFactor describes the setupsecondfactor operation and its observable behavior.
//
// SetupSecondFactor provisions a fresh TOTP secret and moves the account to
// the pending state. Pending has no effect on authentication; only
// [Engine.ConfirmSecondFactor] arms the second factor. Calling setup again
// while pending replaces the unconfirmed secret; calling it while a second
// factor is already confirmed returns [ErrSecondFactorAlreadyEnabled].
//
// SetupSecondFactor may return an error when input validation, dependency calls, or security checks fail.
// SetupSecondFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
//	Security: the secret is returned exactly once, for manual entry and QR
//	rendering; it is never exposed by any later operation.
func (e *Engine) SetupSecondFactor(ctx context.Context, accountID string) (*SecondFactorSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.SecondFactor == SecondFactorEnabled {
		return nil, ErrSecondFactorAlreadyEnabled
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	updated, err := e.applyAccountUpdate(ctx, acct, func(a *Account) {
		if a.SecondFactor == SecondFactorEnabled {
			return
		}
		a.SecondFactor = SecondFactorPending
		a.SecondFactorSecret = raw
		a.SecondFactorLastStep = 0
		a.BackupCodes = nil
	})
	if err != nil {
		return nil, err
	}
	if updated.SecondFactor == SecondFactorEnabled {
		// A concurrent confirm won; the confirmed secret stands.
		return nil, ErrSecondFactorAlreadyEnabled
	}

	e.emitAudit(ctx, AuditSecondFactorSetup, true, acct.ID, nil, nil)

	return &SecondFactorSetup{
		Secret: encoded,
		URI:    e.totp.ProvisionURI(encoded, acct.Email),
	}, nil
}

// ConfirmSecondFactor describes the confirmsecondfactor operation and its observable behavior.
//
// ConfirmSecondFactor verifies one code against the pending secret and arms
// the second factor. On success it returns the account's fresh backup codes
// in plain text exactly once, stores only their hashes, and revokes every
// refresh chain the account holds: sessions opened under the weaker policy do
// not survive it.
//
// ConfirmSecondFactor may return an error when input validation, dependency calls, or security checks fail.
// ConfirmSecondFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmSecondFactor(ctx context.Context, accountID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	switch acct.SecondFactor {
	case SecondFactorPending:
	case SecondFactorEnabled:
		return nil, ErrSecondFactorAlreadyEnabled
	default:
		return nil, ErrSecondFactorNotPending
	}

	step, err := e.proveTOTP(ctx, acct, code, time.Now())
	if err != nil {
		e.emitAudit(ctx, AuditSecondFactorEnabled, false, acct.ID, err, func() map[string]string {
			return map[string]string{"stage": "confirm"}
		})
		return nil, err
	}

	plain, records, err := e.newBackupCodes(acct.ID)
	if err != nil {
		return nil, err
	}

	updated, err := e.applyAccountUpdate(ctx, acct, func(a *Account) {
		if a.SecondFactor != SecondFactorPending {
			return
		}
		a.SecondFactor = SecondFactorEnabled
		a.SecondFactorLastStep = step
		a.BackupCodes = records
	})
	if err != nil {
		return nil, err
	}
	if updated.SecondFactor != SecondFactorEnabled {
		return nil, ErrSecondFactorNotPending
	}

	e.revokeAllTokens(ctx, acct.ID)

	e.emitAudit(ctx, AuditSecondFactorEnabled, true, acct.ID, nil, nil)
	e.emitAudit(ctx, AuditBackupCodesIssued, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprintf("%d", len(plain))}
	})

	return plain, nil
}

// DisableSecondFactor describes the disablesecondfactor operation and its observable behavior.
//
// DisableSecondFactor turns the second factor off after proof of control:
// either the current password or a live TOTP code. It erases the secret and
// every backup code, and revokes the account's refresh chains so sessions
// opened under the stricter policy do not outlive it.
//
// DisableSecondFactor may return an error when input validation, dependency calls, or security checks fail.
// DisableSecondFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisableSecondFactor(ctx context.Context, accountID, pass, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.SecondFactor != SecondFactorEnabled {
		return ErrSecondFactorNotEnabled
	}

	proved := false
	if pass != "" && acct.PasswordHash != "" && e.passwordHash.Verify(pass, acct.PasswordHash) {
		proved = true
	}
	if !proved && code != "" {
		if _, err := e.proveTOTP(ctx, acct, code, time.Now()); err == nil {
			proved = true
		} else if errors.Is(err, ErrRateLimited) {
			return err
		}
	}
	if !proved {
		e.emitAudit(ctx, AuditSecondFactorDisable, false, acct.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	_, err = e.applyAccountUpdate(ctx, acct, func(a *Account) {
		if a.SecondFactor != SecondFactorEnabled {
			return
		}
		a.SecondFactor = SecondFactorDisabled
		a.SecondFactorSecret = nil
		a.SecondFactorLastStep = 0
		a.BackupCodes = nil
	})
	if err != nil {
		return err
	}

	e.revokeAllTokens(ctx, acct.ID)
	e.emitAudit(ctx, AuditSecondFactorDisable, true, acct.ID, nil, nil)
	return nil
}

// proveTOTP verifies one TOTP code against the account's secret under the
// per-account attempt window. It returns the accepted step, which the caller
// must persist when the proof arms or exercises the second factor.
func (e *Engine) proveTOTP(ctx context.Context, acct *Account, code string, now time.Time) (int64, error) {
	if e.secondFactorLimiter != nil {
		if err := e.secondFactorLimiter.Allow(ctx, acct.ID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return 0, ErrRateLimited
			}
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	ok, step, err := e.totp.VerifyCode(acct.SecondFactorSecret, code, now)
	if err != nil || !ok || step <= acct.SecondFactorLastStep {
		return 0, ErrInvalidCredentials
	}

	e.resetSecondFactorLimiter(ctx, acct.ID)
	return step, nil
}
