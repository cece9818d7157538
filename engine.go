package ward

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardauth/ward/internal"
	"github.com/wardauth/ward/internal/limiters"
	"github.com/wardauth/ward/internal/rate"
	"github.com/wardauth/ward/internal/stores"
	"github.com/wardauth/ward/jwt"
	"github.com/wardauth/ward/password"
	"github.com/wardauth/ward/refresh"
)

// casMaxRetries bounds optimistic-concurrency retries before the engine
// reports ErrStoreContention.
const casMaxRetries = 4

// Engine defines a public type used by ward APIs.
//
// Engine instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise. Build one through
// [New]; a zero Engine rejects every operation with [ErrEngineNotReady].
type Engine struct {
	config Config
	store  AccountStore

	tokens              *refresh.Store
	jwtManager          *jwt.Manager
	passwordHash        *password.Argon2
	totp                *totpManager
	secondFactorLimiter rate.Limiter
	resetStore          *stores.ChallengeStore
	verificationStore   *stores.ChallengeStore
	seenStore           *stores.SeenStore

	registrationThrottle *limiters.Throttle
	resetThrottle        *limiters.Throttle
	verificationThrottle *limiters.Throttle

	providers map[string]Provider
	notifier  Notifier
	audit     *auditDispatcher
	metrics   *metricsBank
	logger    *zap.Logger

	// decoyDigest is a digest of a random password hashed at build time.
	// Rejections that never reach a real digest verify against it instead,
	// so their cost matches a wrong-password rejection.
	decoyDigest string
}

// Close describes the close operation and its observable behavior.
//
// Close drains the audit dispatcher within the configured shutdown timeout.
// Operations invoked after Close still run; only their audit events may be
// dropped.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if e.audit != nil {
		return e.audit.Close()
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil ||
		e.jwtManager == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) warn(msg string, err error) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(msg, zap.Error(err))
}

// NormalizeEmail lower-cases and trims an email address. All store lookups
// and uniqueness checks run on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// burnDecoy spends one full argon2id verification against the build-time
// decoy digest, so rejections for unknown emails and OAuth-only accounts
// cost the same as a wrong password.
func (e *Engine) burnDecoy(candidate string) {
	if e.passwordHash == nil || e.decoyDigest == "" {
		return
	}
	e.passwordHash.Verify(candidate, e.decoyDigest)
}

// applyAccountUpdate runs mutate through the store's version check, reloading
// and retrying on conflict. mutate sees the freshest state on every attempt
// and must re-check its own preconditions.
func (e *Engine) applyAccountUpdate(ctx context.Context, acct *Account, mutate func(*Account)) (*Account, error) {
	for attempt := 0; attempt < casMaxRetries; attempt++ {
		applied, err := e.store.CompareAndUpdate(ctx, acct.ID, acct.Version, mutate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if applied {
			updated := acct.Clone()
			mutate(updated)
			updated.Version = acct.Version + 1
			return updated, nil
		}

		reloaded, err := e.store.FindByID(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if reloaded == nil {
			return nil, ErrAccountNotFound
		}
		acct = reloaded
	}
	return nil, ErrStoreContention
}

func (e *Engine) requireAccount(ctx context.Context, accountID string) (*Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalid
	}
	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate runs the full password login: lockout check, lazy unlock,
// password verification, and the second-factor exchange for accounts that
// enabled one. Outcomes:
//
//   - wrong password, unknown email, OAuth-only account, or a bad
//     second-factor code all return [ErrInvalidCredentials];
//   - an account inside its lockout window returns [ErrAccountLocked]
//     before the password is examined, even when the password is correct;
//   - a correct password against an account with a confirmed second factor
//     and no code returns [ErrChallengeRequired] so the caller can prompt;
//   - full success returns the account identity and a fresh token pair.
//
// Second-factor failures never advance the password lockout counter; they are
// throttled by the engine's own per-account attempt window instead.
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
//	Security: rejections are timing-equalized against the decoy digest and
//	never disclose which factor failed.
func (e *Engine) Authenticate(ctx context.Context, email, pass, secondFactorCode string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	if email == "" || pass == "" {
		e.burnDecoy(pass)
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailed, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "malformed_request"}
		})
		return nil, ErrInvalidCredentials
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		e.burnDecoy(pass)
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailed, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"email": email, "reason": "unknown_email"}
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()

	if acct.Locked(now) {
		return nil, e.rejectLocked(ctx, acct, now)
	}

	if acct.LockedUntil != nil {
		// The lock has elapsed: the counter resets before the password is
		// examined, so exactly one post-unlock attempt decides its value.
		acct, err = e.applyAccountUpdate(ctx, acct, func(a *Account) {
			if a.LockedUntil != nil && !now.Before(*a.LockedUntil) {
				a.FailedAttempts = 0
				a.LockedUntil = nil
			}
		})
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		if acct.Locked(now) {
			// Another attempt re-tripped the lock between our read and the
			// reset.
			return nil, e.rejectLocked(ctx, acct, now)
		}
	}

	if acct.PasswordHash == "" {
		e.burnDecoy(pass)
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailed, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_login_unavailable"}
		})
		return nil, ErrInvalidCredentials
	}

	if !e.passwordHash.Verify(pass, acct.PasswordHash) {
		return nil, e.failPassword(ctx, acct, now)
	}

	var proof *secondFactorProof
	if acct.SecondFactor == SecondFactorEnabled {
		if secondFactorCode == "" {
			// Protocol step, not an outcome: no audit event, and the
			// failed-attempt counter stays untouched until the exchange
			// completes.
			e.metrics.inc(MetricChallengeRequired)
			return nil, ErrChallengeRequired
		}
		proof, err = e.checkSecondFactor(ctx, acct, secondFactorCode, now)
		if err != nil {
			return nil, err
		}
	}

	return e.finishLogin(ctx, acct, now, pass, proof, AuditLoginSuccess, nil)
}

func (e *Engine) rejectLocked(ctx context.Context, acct *Account, now time.Time) error {
	e.metrics.inc(MetricLoginLocked)
	retryAfter := acct.LockedUntil.Sub(now).Round(time.Second)
	e.emitAudit(ctx, AuditLoginLocked, false, acct.ID, ErrAccountLocked, func() map[string]string {
		return map[string]string{"retry_after": retryAfter.String()}
	})
	return ErrAccountLocked
}

// failPassword applies the failed-attempt transition: increment, and lock
// atomically with the increment once the threshold is met. The attempt that
// trips the lock still answers ErrInvalidCredentials; only attempts arriving
// while locked see ErrAccountLocked.
func (e *Engine) failPassword(ctx context.Context, acct *Account, now time.Time) error {
	threshold := e.config.Security.MaxLoginAttempts
	until := now.Add(e.config.Security.LockoutDuration)

	updated, err := e.applyAccountUpdate(ctx, acct, func(a *Account) {
		if a.Locked(now) {
			// A concurrent attempt already tripped the lock; the counter
			// stays frozen for the lock's lifetime.
			return
		}
		a.FailedAttempts++
		if a.FailedAttempts >= threshold {
			lockedUntil := until
			a.LockedUntil = &lockedUntil
		}
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	e.metrics.inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditLoginFailed, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
		md := map[string]string{
			"reason":   "password_mismatch",
			"attempts": fmt.Sprintf("%d", updated.FailedAttempts),
		}
		if updated.LockedUntil != nil {
			md["locked"] = "true"
		}
		return md
	})
	return ErrInvalidCredentials
}

// secondFactorProof records what a successful second-factor exchange must
// fold into the success commit: the accepted TOTP step, or the backup-code
// hash to consume.
type secondFactorProof struct {
	step       int64
	backupHash [32]byte
	usedBackup bool
}

func (e *Engine) checkSecondFactor(ctx context.Context, acct *Account, code string, now time.Time) (*secondFactorProof, error) {
	if e.secondFactorLimiter != nil {
		if err := e.secondFactorLimiter.Allow(ctx, acct.ID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metrics.inc(MetricSecondFactorRejected)
				e.emitAudit(ctx, AuditLoginFailed, false, acct.ID, ErrRateLimited, func() map[string]string {
					return map[string]string{"stage": "second_factor", "reason": "rate_limited"}
				})
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	code = strings.TrimSpace(code)
	reason := "code_mismatch"

	if isNumericString(code) && len(code) == e.config.SecondFactor.Digits {
		ok, step, err := e.totp.VerifyCode(acct.SecondFactorSecret, code, now)
		switch {
		case err != nil:
			reason = "verification_failed"
		case ok && step > acct.SecondFactorLastStep:
			e.resetSecondFactorLimiter(ctx, acct.ID)
			return &secondFactorProof{step: step}, nil
		case ok:
			// Correct digits for an already-accepted step: a replayed
			// capture, not a typo.
			reason = "replay"
		}
	}

	if canonical := internal.CanonicalizeBackupCode(code); canonical != "" {
		hash := internal.BackupCodeHash(acct.ID, canonical)
		for _, rec := range acct.BackupCodes {
			if subtle.ConstantTimeCompare(rec.Hash[:], hash[:]) == 1 {
				e.resetSecondFactorLimiter(ctx, acct.ID)
				return &secondFactorProof{backupHash: hash, usedBackup: true}, nil
			}
		}
	}

	e.metrics.inc(MetricSecondFactorRejected)
	e.emitAudit(ctx, AuditLoginFailed, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"stage": "second_factor", "reason": reason}
	})
	return nil, ErrInvalidCredentials
}

func (e *Engine) resetSecondFactorLimiter(ctx context.Context, accountID string) {
	if e.secondFactorLimiter == nil {
		return
	}
	if err := e.secondFactorLimiter.Reset(ctx, accountID); err != nil {
		e.warn("second-factor limiter reset failed", err)
	}
}

// rejectThrottled maps a flow-throttle rejection onto the engine's error
// surface: budget exhaustion answers ErrRateLimited under the flow's own
// audit event, Redis trouble answers ErrStoreUnavailable.
func (e *Engine) rejectThrottled(ctx context.Context, eventType string, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		e.metrics.inc(MetricFlowThrottled)
		e.emitAudit(ctx, eventType, false, "", ErrRateLimited, func() map[string]string {
			return map[string]string{"reason": "rate_limited"}
		})
		return ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// finishLogin commits the success transition in one conditional update, then
// mints the token pair. The commit re-checks single-use material against the
// freshest account state on every retry, so a backup code consumed by a
// concurrent login, or a TOTP step another login already recorded, turns into
// a rejection instead of a double acceptance.
func (e *Engine) finishLogin(
	ctx context.Context,
	acct *Account,
	now time.Time,
	pass string,
	proof *secondFactorProof,
	eventType string,
	metadataBuilder func() map[string]string,
) (*AuthResult, error) {
	var rehash string
	oldDigest := acct.PasswordHash
	if pass != "" && oldDigest != "" && e.passwordHash.NeedsUpgrade(oldDigest) {
		upgraded, err := e.passwordHash.Hash(pass)
		if err != nil {
			e.warn("opportunistic rehash failed", err)
		} else {
			rehash = upgraded
		}
	}

	mutate := func(a *Account) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
		login := now
		a.LastLogin = &login
		if proof != nil {
			if proof.usedBackup {
				a.BackupCodes = withoutBackupCode(a.BackupCodes, proof.backupHash)
			} else if proof.step > a.SecondFactorLastStep {
				a.SecondFactorLastStep = proof.step
			}
		}
		if rehash != "" && a.PasswordHash == oldDigest {
			// Skipped when a concurrent change already replaced the digest.
			a.PasswordHash = rehash
		}
	}

	committed := acct
	for attempt := 0; ; attempt++ {
		if pass != "" && proof == nil && committed.SecondFactor == SecondFactorEnabled {
			// A concurrent confirm enabled the second factor after our
			// read; this password login no longer satisfies it. Provider
			// logins carry no password and are exempt.
			e.metrics.inc(MetricChallengeRequired)
			return nil, ErrChallengeRequired
		}
		if proof != nil {
			if proof.usedBackup && !hasBackupCode(committed.BackupCodes, proof.backupHash) {
				e.metrics.inc(MetricSecondFactorRejected)
				e.emitAudit(ctx, AuditLoginFailed, false, committed.ID, ErrInvalidCredentials, func() map[string]string {
					return map[string]string{"stage": "second_factor", "reason": "backup_code_consumed"}
				})
				return nil, ErrInvalidCredentials
			}
			if !proof.usedBackup && proof.step <= committed.SecondFactorLastStep {
				e.metrics.inc(MetricSecondFactorRejected)
				e.emitAudit(ctx, AuditLoginFailed, false, committed.ID, ErrInvalidCredentials, func() map[string]string {
					return map[string]string{"stage": "second_factor", "reason": "replay"}
				})
				return nil, ErrInvalidCredentials
			}
		}

		applied, err := e.store.CompareAndUpdate(ctx, committed.ID, committed.Version, mutate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if applied {
			updated := committed.Clone()
			mutate(updated)
			updated.Version = committed.Version + 1
			committed = updated
			break
		}
		if attempt+1 >= casMaxRetries {
			return nil, ErrStoreContention
		}

		reloaded, err := e.store.FindByID(ctx, committed.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if reloaded == nil {
			return nil, ErrInvalidCredentials
		}
		committed = reloaded
	}

	pair, err := e.issuePair(ctx, committed.ID, committed.Role)
	if err != nil {
		e.emitAudit(ctx, eventType, false, committed.ID, err, nil)
		return nil, err
	}

	e.metrics.inc(MetricLoginSuccess)
	e.emitAudit(ctx, eventType, true, committed.ID, nil, metadataBuilder)
	e.observeNewDevice(ctx, committed)

	return &AuthResult{
		AccountID: committed.ID,
		Role:      committed.Role,
		Tokens:    pair,
	}, nil
}

// issuePair signs a fresh access token and opens a new refresh chain.
//
//	Performance: 1 signature + 1 Redis MULTI.
func (e *Engine) issuePair(ctx context.Context, accountID string, role Role) (TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(accountID, string(role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	secret, err := refresh.NewSecret()
	if err != nil {
		return TokenPair{}, err
	}

	now := time.Now()
	id := uuid.New()
	rec := &refresh.TokenRecord{
		ID:         id,
		AccountID:  accountID,
		ChainID:    id, // a chain root is its own chain
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(e.config.Tokens.RefreshTTL).Unix(),
		SecretHash: refresh.HashSecret(secret),
	}
	if err := e.tokens.Save(ctx, rec, e.config.Tokens.RefreshTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.inc(MetricPairsIssued)

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.EncodeToken(id, secret),
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: time.Unix(rec.ExpiresAt, 0),
	}, nil
}

// observeNewDevice reports a success from an unseen address to the notifier.
// Best effort on both legs; a Redis or delivery failure never fails the
// login that triggered it.
func (e *Engine) observeNewDevice(ctx context.Context, acct *Account) {
	if !e.config.Security.NotifyNewDevice || e.seenStore == nil || e.notifier == nil {
		return
	}
	ip := ClientIPFromContext(ctx)
	if ip == "" {
		return
	}

	known, err := e.seenStore.Observe(ctx, acct.ID, ip, e.config.Security.KnownAddressTTL)
	if err != nil {
		e.warn("known-address lookup failed", err)
		return
	}
	if known {
		return
	}
	if err := e.notifier.LoginFromNewDevice(ctx, acct.Email, ip, ClientIDFromContext(ctx)); err != nil {
		e.warn("new-device notification failed", err)
	}
}

func hasBackupCode(records []BackupCodeRecord, hash [32]byte) bool {
	for _, rec := range records {
		if rec.Hash == hash {
			return true
		}
	}
	return false
}

func withoutBackupCode(records []BackupCodeRecord, hash [32]byte) []BackupCodeRecord {
	out := make([]BackupCodeRecord, 0, len(records))
	for _, rec := range records {
		if rec.Hash == hash {
			continue
		}
		out = append(out, rec)
	}
	return out
}
