package ward

import (
	"context"
	"time"
)

// Role defines a public type used by ward APIs.
//
// Role instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type Role string

// Closed role enumeration. The engine stamps the role into access tokens;
// authorization decisions belong to the caller.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the closed enumeration values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// SecondFactorState defines a public type used by ward APIs.
type SecondFactorState uint8

// Second-factor lifecycle. Pending means a secret has been provisioned but
// never confirmed; only Enabled changes authentication behavior.
const (
	SecondFactorDisabled SecondFactorState = iota
	SecondFactorPending
	SecondFactorEnabled
)

// String returns a stable lower-case label for audit metadata.
func (s SecondFactorState) String() string {
	switch s {
	case SecondFactorPending:
		return "pending"
	case SecondFactorEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// BackupCodeRecord defines a public type used by ward APIs.
//
// Hash is the binding hash of an unused backup code; the plaintext code is
// shown to the user exactly once at generation time and never stored.
type BackupCodeRecord struct {
	Hash [32]byte
}

// Account defines a public type used by ward APIs.
//
// Account instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise. All mutation flows
// through [AccountStore.CompareAndUpdate]; the engine never writes an Account
// it read back without a version check.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string // empty marks an OAuth-only account; password login is impossible
	Role          Role
	EmailVerified bool

	FailedAttempts int
	LockedUntil    *time.Time // nil = not locked

	SecondFactor         SecondFactorState
	SecondFactorSecret   []byte // raw TOTP secret while state is pending or enabled
	SecondFactorLastStep int64  // highest accepted TOTP step, floor for replay rejection
	BackupCodes          []BackupCodeRecord

	CreatedAt time.Time
	LastLogin *time.Time

	// Version is the optimistic-concurrency token managed by the store.
	// Stores bump it on every successful CompareAndUpdate.
	Version int64
}

// Locked reports whether the account is inside an active lockout window.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate shared state behind the version counter's back.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.LockedUntil != nil {
		lu := *a.LockedUntil
		out.LockedUntil = &lu
	}
	if a.LastLogin != nil {
		ll := *a.LastLogin
		out.LastLogin = &ll
	}
	if a.SecondFactorSecret != nil {
		out.SecondFactorSecret = append([]byte(nil), a.SecondFactorSecret...)
	}
	if a.BackupCodes != nil {
		out.BackupCodes = append([]BackupCodeRecord(nil), a.BackupCodes...)
	}
	return &out
}

// LinkedIdentity defines a public type used by ward APIs.
//
// (Provider, SubjectID) is globally unique across all accounts, and an
// account holds at most one identity per provider.
type LinkedIdentity struct {
	Provider  string
	SubjectID string
	AccountID string
	LinkedAt  time.Time
}

// TokenPair defines a public type used by ward APIs.
//
// AccessToken is a stateless signed JWT; RefreshToken is an opaque bearer
// string backed by a stored record.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult defines a public type used by ward APIs.
type AuthResult struct {
	AccountID string
	Role      Role
	Tokens    TokenPair
}

// SecondFactorSetup defines a public type used by ward APIs.
//
// Secret is base32 without padding, ready for manual entry; URI is the
// otpauth:// provisioning string for QR rendering.
type SecondFactorSetup struct {
	Secret string
	URI    string
}

// AccountStore describes the persistence contract the engine requires.
//
// Lookups return (nil, nil) when no account matches; an error always means
// backend trouble, never absence. Implementations must enforce unique emails
// (case-insensitively) and the (provider, subjectID) identity index, and must
// bump Account.Version on every applied update.
type AccountStore interface {
	// FindByEmail resolves a normalized (lower-case) email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByID resolves an account id.
	FindByID(ctx context.Context, id string) (*Account, error)

	// Create inserts a new account. A duplicate email yields
	// [ErrEmailTaken].
	Create(ctx context.Context, account *Account) error

	// CompareAndUpdate applies mutate to the stored account only when its
	// current version equals expectedVersion. It reports (false, nil) on a
	// version conflict so callers can reload and retry; an error means the
	// backend failed and retrying with the same version is pointless.
	CompareAndUpdate(ctx context.Context, id string, expectedVersion int64, mutate func(*Account)) (bool, error)

	// FindIdentity resolves a (provider, subjectID) pair to its identity,
	// or (nil, nil) when unlinked.
	FindIdentity(ctx context.Context, provider string, subjectID string) (*LinkedIdentity, error)

	// IdentitiesForAccount lists an account's linked identities.
	IdentitiesForAccount(ctx context.Context, accountID string) ([]LinkedIdentity, error)

	// LinkIdentity inserts an identity. A subject already linked to another
	// account yields [ErrIdentityLinkedElsewhere]; a second identity for the
	// same provider on one account yields [ErrProviderAlreadyLinked].
	LinkIdentity(ctx context.Context, identity LinkedIdentity) error

	// UnlinkIdentity removes an account's identity for a provider and
	// reports whether one existed.
	UnlinkIdentity(ctx context.Context, accountID string, provider string) (bool, error)
}

// Provider describes an external identity provider as a capability: the
// engine hands it an authorization code and receives the provider-scoped
// subject id. Token exchange, HTTP, and caching live behind this interface.
type Provider interface {
	// Name returns the stable provider label used in LinkedIdentity records.
	Name() string

	// ExchangeCode validates an authorization code and returns the
	// provider's stable subject id for the authenticated user.
	ExchangeCode(ctx context.Context, code string) (subjectID string, err error)
}

// Notifier receives user-facing delivery requests. Implementations send mail
// or push messages; the engine only reports that something happened and never
// fails an operation because delivery failed.
type Notifier interface {
	// PasswordResetRequested delivers a reset token to the account's email.
	PasswordResetRequested(ctx context.Context, email string, token string) error

	// EmailVerificationRequested delivers a verification token.
	EmailVerificationRequested(ctx context.Context, email string, token string) error

	// LoginFromNewDevice reports a successful login from an address the
	// account has not recently used.
	LoginFromNewDevice(ctx context.Context, email string, ip string, clientID string) error
}

// NoopNotifier is the default [Notifier]; it discards every notification.
type NoopNotifier struct{}

// PasswordResetRequested implements [Notifier].
func (NoopNotifier) PasswordResetRequested(context.Context, string, string) error { return nil }

// EmailVerificationRequested implements [Notifier].
func (NoopNotifier) EmailVerificationRequested(context.Context, string, string) error { return nil }

// LoginFromNewDevice implements [Notifier].
func (NoopNotifier) LoginFromNewDevice(context.Context, string, string, string) error { return nil }
