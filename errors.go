package ward

import "errors"

// Sentinel errors returned by engine operations. Callers branch with
// errors.Is; the engine may wrap these with backend detail but never replaces
// them. Security rejections are deliberately coarse: absent accounts, wrong
// passwords, and bad second-factor codes all surface ErrInvalidCredentials,
// and the audit stream carries the precise internal reason instead.
var (
	// ErrInvalidCredentials rejects an authentication attempt without
	// disclosing whether the account exists, the password was wrong, or a
	// second-factor code failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked rejects an attempt against an account inside an
	// active lockout window. A correct password does not bypass it.
	ErrAccountLocked = errors.New("account locked")

	// ErrChallengeRequired reports that the password was accepted but the
	// account requires a second-factor code to finish authenticating. It is
	// a protocol step, not a failure.
	ErrChallengeRequired = errors.New("second factor required")

	// ErrAccountNotFound is returned by management operations that address
	// an account by id. Authentication never returns it.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken rejects registration with an email that already has an
	// account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrIdentityLinkedElsewhere rejects linking a (provider, subject) pair
	// that already belongs to another account.
	ErrIdentityLinkedElsewhere = errors.New("identity linked to another account")

	// ErrProviderAlreadyLinked rejects a second identity for a provider the
	// account is already linked with.
	ErrProviderAlreadyLinked = errors.New("provider already linked")

	// ErrLastAuthFactor rejects removing an account's only remaining way to
	// authenticate.
	ErrLastAuthFactor = errors.New("cannot remove last authentication factor")

	// ErrProviderUnknown rejects an OAuth operation naming a provider that
	// was never registered with the builder.
	ErrProviderUnknown = errors.New("unknown identity provider")

	// ErrTokenInvalid rejects a malformed, forged, or unknown token.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired rejects a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenReused reports a refresh token replay. By the time callers see
	// it, every token on the affected chain is already revoked.
	ErrTokenReused = errors.New("refresh token reuse detected")

	// ErrSecondFactorNotEnabled rejects second-factor operations on an
	// account that has none enabled.
	ErrSecondFactorNotEnabled = errors.New("second factor not enabled")

	// ErrSecondFactorNotPending rejects confirmation when no setup is in
	// progress.
	ErrSecondFactorNotPending = errors.New("second factor setup not pending")

	// ErrSecondFactorAlreadyEnabled rejects a fresh setup while a confirmed
	// second factor is active.
	ErrSecondFactorAlreadyEnabled = errors.New("second factor already enabled")

	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password matches current password")

	// ErrRateLimited rejects an attempt dropped by the engine's own
	// second-factor attempt limiter or by one of the flow throttles.
	ErrRateLimited = errors.New("too many attempts")

	// ErrInvalid rejects malformed input (empty email, oversized code, bad
	// token shape) before any store is consulted.
	ErrInvalid = errors.New("invalid input")

	// ErrEngineNotReady guards calls on a zero or partially built engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Transient backend failures. Both are retryable: the operation may succeed
// if repeated, and neither says anything about the credentials presented.
var (
	// ErrStoreContention reports that optimistic-concurrency retries were
	// exhausted while another writer kept winning.
	ErrStoreContention = errors.New("store contention")

	// ErrStoreUnavailable reports that a backing store could not be
	// reached or answered with a non-domain failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Retryable reports whether err represents a transient condition worth
// repeating with backoff. Terminal rejections (bad credentials, locked
// account, policy violations) are never retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreContention) || errors.Is(err, ErrStoreUnavailable)
}
