package ward

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardauth/ward/jwt"
	"github.com/wardauth/ward/refresh"
)

// Principal identifies the holder of a verified access token.
type Principal struct {
	AccountID string
	Role      Role
	ExpiresAt time.Time
}

// VerifyAccess describes the verifyaccess operation and its observable behavior.
//
// VerifyAccess validates the token's signature and time claims and nothing
// else: it consults no storage, so revoking refresh chains does not shorten
// the life of an already-issued access token. A stale token returns
// [ErrTokenExpired]; every other failure returns [ErrTokenInvalid].
//
// VerifyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
//	Performance: pure CPU, safe for unbounded parallelism on every request.
func (e *Engine) VerifyAccess(token string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(token)
	e.metrics.observeVerify(time.Since(start))

	if err != nil {
		e.metrics.inc(MetricAccessRejected)
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	e.metrics.inc(MetricAccessAccepted)

	principal := &Principal{
		AccountID: claims.UID,
		Role:      Role(claims.Role),
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}

// Rotate describes the rotate operation and its observable behavior.
//
// Rotate exchanges a live refresh token for a fresh access+refresh pair and
// retires the presented token in the same atomic step. Presenting a token
// that was already rotated or revoked is treated as theft: every record on
// its chain is revoked before [ErrTokenReused] is returned, so neither the
// thief nor the victim keeps a usable token. A token past its lifetime
// returns [ErrTokenExpired]; unknown and malformed tokens return
// [ErrTokenInvalid].
//
// Rotate may return an error when input validation, dependency calls, or security checks fail.
// Rotate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
//	Performance: 2 Redis round trips + 1 account lookup + 1 signature.
//	Security: the retire-and-replace step is a single Lua CAS, so two
//	rotations of one token can never both succeed.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	presentedID, secret, err := refresh.DecodeToken(refreshToken)
	if err != nil {
		e.emitAudit(ctx, AuditRefreshFailed, false, "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed_token"}
		})
		return nil, ErrTokenInvalid
	}
	providedHash := refresh.HashSecret(secret)

	// The stored record knows the account; the account knows the role the
	// fresh access token must carry.
	current, err := e.tokens.Get(ctx, presentedID)
	if err != nil {
		return nil, e.rejectRotate(ctx, "", err)
	}
	if subtle.ConstantTimeCompare(current.SecretHash[:], providedHash[:]) != 1 {
		return nil, e.rejectRotate(ctx, current.AccountID, refresh.ErrSecretMismatch)
	}

	acct, err := e.store.FindByID(ctx, current.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		// Account vanished under a live chain; treat its tokens as dead.
		return nil, e.rejectRotate(ctx, current.AccountID, refresh.ErrTokenRecordNotFound)
	}

	nextSecret, err := refresh.NewSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	next := &refresh.TokenRecord{
		ID:         uuid.New(),
		AccountID:  current.AccountID,
		ChainID:    current.ChainID,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(e.config.Tokens.RefreshTTL).Unix(),
		SecretHash: refresh.HashSecret(nextSecret),
	}

	fresh, err := e.tokens.Rotate(ctx, presentedID, providedHash, next, e.config.Tokens.RefreshTTL)
	if err != nil {
		return nil, e.rejectRotate(ctx, current.AccountID, err)
	}

	access, err := e.jwtManager.CreateAccess(acct.ID, string(acct.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	e.metrics.inc(MetricRotations)
	e.emitAudit(ctx, AuditRefreshRotated, true, acct.ID, nil, nil)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.EncodeToken(next.ID, nextSecret),
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: time.Unix(fresh.ExpiresAt, 0),
	}, nil
}

// rejectRotate maps a refresh-store failure onto the engine's error surface
// and emits the matching audit event. Reuse detection reports separately
// from ordinary rejection because the chain is already dead when it fires.
func (e *Engine) rejectRotate(ctx context.Context, accountID string, err error) error {
	switch {
	case errors.Is(err, refresh.ErrReuseDetected):
		e.metrics.inc(MetricReuseDetections)
		e.metrics.inc(MetricChainRevocations)
		e.emitAudit(ctx, AuditRefreshReuse, false, accountID, ErrTokenReused, nil)
		return ErrTokenReused

	case errors.Is(err, refresh.ErrTokenRecordExpired):
		e.emitAudit(ctx, AuditRefreshFailed, false, accountID, ErrTokenExpired, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return ErrTokenExpired

	case errors.Is(err, refresh.ErrTokenRecordNotFound),
		errors.Is(err, refresh.ErrSecretMismatch),
		errors.Is(err, refresh.ErrTokenRecordCorrupt):
		e.emitAudit(ctx, AuditRefreshFailed, false, accountID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": rotateRejectReason(err)}
		})
		return ErrTokenInvalid

	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func rotateRejectReason(err error) string {
	switch {
	case errors.Is(err, refresh.ErrSecretMismatch):
		return "secret_mismatch"
	case errors.Is(err, refresh.ErrTokenRecordCorrupt):
		return "corrupt_record"
	default:
		return "unknown_record"
	}
}

// Logout describes the logout operation and its observable behavior.
//
// Logout revokes every record on the presented token's chain. The call is
// idempotent: an already-revoked chain and a token whose records were
// already pruned both succeed without effect. Possession of the bearer
// secret is required; a forged token returns [ErrTokenInvalid].
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	presentedID, secret, err := refresh.DecodeToken(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	current, err := e.tokens.Get(ctx, presentedID)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrTokenRecordNotFound):
			return nil
		case errors.Is(err, refresh.ErrTokenRecordCorrupt):
			return ErrTokenInvalid
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	revoked, err := e.tokens.RevokeChain(ctx, presentedID, refresh.HashSecret(secret))
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrTokenRecordNotFound):
			return nil
		case errors.Is(err, refresh.ErrSecretMismatch),
			errors.Is(err, refresh.ErrTokenRecordCorrupt):
			return ErrTokenInvalid
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if revoked > 0 {
		e.metrics.inc(MetricChainRevocations)
	}
	e.emitAudit(ctx, AuditLogout, true, current.AccountID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%d", revoked)}
	})
	return nil
}

// LogoutEverywhere describes the logouteverywhere operation and its observable behavior.
//
// LogoutEverywhere revokes every refresh record the account holds, across
// all chains and devices, and reports how many records were flipped. Issued
// access tokens stay valid until their own expiry; only refresh ability is
// withdrawn.
//
// LogoutEverywhere may return an error when input validation, dependency calls, or security checks fail.
// LogoutEverywhere does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutEverywhere(ctx context.Context, accountID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	revoked, err := e.tokens.RevokeAllForAccount(ctx, acct.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if revoked > 0 {
		e.metrics.inc(MetricChainRevocations)
	}
	e.emitAudit(ctx, AuditLogoutEverywhere, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%d", revoked)}
	})
	return revoked, nil
}

// revokeAllTokens is the shared post-mutation step for operations that must
// invalidate every open session: password change and reset, and second-factor
// enable and disable. Failures degrade to a warning; the primary mutation
// already committed.
func (e *Engine) revokeAllTokens(ctx context.Context, accountID string) {
	if e.tokens == nil {
		return
	}
	revoked, err := e.tokens.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		e.warn("revoke-all after credential change failed", err)
		return
	}
	if revoked > 0 {
		e.metrics.inc(MetricChainRevocations)
	}
}
