package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LinkIdentity describes the linkidentity operation and its observable behavior.
//
// LinkIdentity attaches an external identity to an account. A subject
// already owned by another account returns [ErrIdentityLinkedElsewhere]; a
// second identity for a provider the account already carries returns
// [ErrProviderAlreadyLinked]. The store's unique index backs both checks, so
// a concurrent duplicate insert surfaces the same sentinels.
//
// LinkIdentity may return an error when input validation, dependency calls, or security checks fail.
// LinkIdentity does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LinkIdentity(ctx context.Context, accountID, provider, subjectID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	provider = strings.TrimSpace(provider)
	subjectID = strings.TrimSpace(subjectID)
	if provider == "" || subjectID == "" {
		return ErrInvalid
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}

	err = e.store.LinkIdentity(ctx, LinkedIdentity{
		Provider:  provider,
		SubjectID: subjectID,
		AccountID: acct.ID,
		LinkedAt:  time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrIdentityLinkedElsewhere) || errors.Is(err, ErrProviderAlreadyLinked) {
			e.emitAudit(ctx, AuditIdentityLinked, false, acct.ID, err, func() map[string]string {
				return map[string]string{"provider": provider}
			})
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, AuditIdentityLinked, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	return nil
}

// UnlinkIdentity describes the unlinkidentity operation and its observable behavior.
//
// UnlinkIdentity removes the account's identity for a provider. An account
// must always retain at least one way to authenticate: removing the last
// identity of a passwordless account returns [ErrLastAuthFactor] and removes
// nothing. Unlinking a provider that was never linked is a no-op success.
//
// Whether open refresh chains survive an unlink is the RevokeOnUnlink
// policy; provenance of individual chains is not tracked, so revocation is
// all or nothing.
//
// UnlinkIdentity may return an error when input validation, dependency calls, or security checks fail.
// UnlinkIdentity does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnlinkIdentity(ctx context.Context, accountID, provider string) error {
	if err := e.ready(); err != nil {
		return err
	}

	provider = strings.TrimSpace(provider)
	if provider == "" {
		return ErrInvalid
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if acct.PasswordHash == "" {
		identities, err := e.store.IdentitiesForAccount(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		remaining := 0
		for _, identity := range identities {
			if identity.Provider != provider {
				remaining++
			}
		}
		if remaining == 0 {
			e.emitAudit(ctx, AuditIdentityUnlinked, false, acct.ID, ErrLastAuthFactor, func() map[string]string {
				return map[string]string{"provider": provider}
			})
			return ErrLastAuthFactor
		}
	}

	removed, err := e.store.UnlinkIdentity(ctx, acct.ID, provider)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !removed {
		return nil
	}

	if e.config.Security.RevokeOnUnlink {
		e.revokeAllTokens(ctx, acct.ID)
	}

	e.emitAudit(ctx, AuditIdentityUnlinked, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	return nil
}

// Identities describes the identities operation and its observable behavior.
//
// Identities lists the account's linked external identities.
//
// Identities may return an error when input validation, dependency calls, or security checks fail.
// Identities does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Identities(ctx context.Context, accountID string) ([]LinkedIdentity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	identities, err := e.store.IdentitiesForAccount(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return identities, nil
}

// AuthenticateWithProvider describes the authenticatewithprovider operation and its observable behavior.
//
// AuthenticateWithProvider finishes an OAuth login: it exchanges the
// authorization code with the named [Provider], resolves the returned
// subject to a linked account, and issues a token pair. The provider already
// authenticated the user, so no password and no second factor run — but the
// account lockout still applies. A subject with no linked account returns
// [ErrInvalidCredentials]; the link must be created explicitly through
// [Engine.LinkIdentity] first.
//
// AuthenticateWithProvider may return an error when input validation, dependency calls, or security checks fail.
// AuthenticateWithProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuthenticateWithProvider(ctx context.Context, provider, code string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	p, ok := e.providers[provider]
	if !ok {
		return nil, ErrProviderUnknown
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalid
	}

	subjectID, err := p.ExchangeCode(ctx, code)
	if err != nil || strings.TrimSpace(subjectID) == "" {
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditOAuthLogin, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"provider": provider, "reason": "exchange_rejected"}
		})
		return nil, ErrInvalidCredentials
	}

	identity, err := e.store.FindIdentity(ctx, provider, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if identity == nil {
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditOAuthLogin, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"provider": provider, "reason": "subject_unlinked"}
		})
		return nil, ErrInvalidCredentials
	}

	acct, err := e.store.FindByID(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		// Dangling link; answer like an unknown subject.
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditOAuthLogin, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"provider": provider, "reason": "dangling_link"}
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if acct.Locked(now) {
		return nil, e.rejectLocked(ctx, acct, now)
	}

	return e.finishLogin(ctx, acct, now, "", nil, AuditOAuthLogin, func() map[string]string {
		return map[string]string{"provider": provider}
	})
}
