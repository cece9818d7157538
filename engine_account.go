package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxEmailLength = 254

// Register describes the register operation and its observable behavior.
//
// Register creates a password account. The email is normalized before the
// uniqueness check, so two spellings of one address cannot coexist; a taken
// email returns [ErrEmailTaken]. The account starts unverified, with the
// user role unless another valid role is named. Registration is throttled
// per email and per caller address; an exhausted window returns
// [ErrRateLimited].
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, email, pass string, role Role) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	if email == "" || len(email) > maxEmailLength || !strings.Contains(email, "@") {
		return nil, ErrInvalid
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalid
	}

	if err := e.registrationThrottle.Allow(ctx, email, ClientIPFromContext(ctx)); err != nil {
		return nil, e.rejectThrottled(ctx, AuditRegistered, err)
	}

	digest, err := e.passwordHash.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	acct := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.store.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.emitAudit(ctx, AuditRegistered, false, "", ErrEmailTaken, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, AuditRegistered, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"email": email, "role": string(role)}
	})

	return acct.Clone(), nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword replaces the account's password after proof of the current
// one. Reusing the current password returns [ErrPasswordReuse]. On success
// every refresh chain is revoked: a password change is the recovery move
// after suspected compromise, and open sessions must not survive it.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPass, newPass string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if acct.PasswordHash == "" {
		// OAuth-only accounts gain a first password through the reset
		// flow, which proves mailbox control instead.
		e.burnDecoy(oldPass)
		e.emitAudit(ctx, AuditPasswordChanged, false, acct.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if !e.passwordHash.Verify(oldPass, acct.PasswordHash) {
		e.emitAudit(ctx, AuditPasswordChanged, false, acct.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if e.passwordHash.Verify(newPass, acct.PasswordHash) {
		e.emitAudit(ctx, AuditPasswordChanged, false, acct.ID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	digest, err := e.passwordHash.Hash(newPass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	oldDigest := acct.PasswordHash
	updated, err := e.applyAccountUpdate(ctx, acct, func(a *Account) {
		if a.PasswordHash != oldDigest {
			// A concurrent change or reset won; do not overwrite it with
			// a digest proven against the older password.
			return
		}
		a.PasswordHash = digest
		a.FailedAttempts = 0
		a.LockedUntil = nil
	})
	if err != nil {
		return err
	}
	if updated.PasswordHash != digest {
		e.emitAudit(ctx, AuditPasswordChanged, false, acct.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	e.revokeAllTokens(ctx, acct.ID)
	e.emitAudit(ctx, AuditPasswordChanged, true, acct.ID, nil, nil)
	return nil
}
