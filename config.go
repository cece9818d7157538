package ward

import (
	"errors"
	"strings"
	"time"

	"github.com/wardauth/ward/jwt"
	"github.com/wardauth/ward/password"
)

// TokenConfig defines a public type used by ward APIs.
//
// TokenConfig instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// RefreshTTL is the logical lifetime of a refresh token record.
	RefreshTTL time.Duration

	// Retention extends each record's Redis TTL past RefreshTTL so revoked
	// and expired records stay visible to reuse detection.
	Retention time.Duration

	// KeyPrefix namespaces the refresh store's Redis keys.
	KeyPrefix string
}

// SecurityConfig defines a public type used by ward APIs.
//
// SecurityConfig instances are intended to be configured during
// initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	// MaxLoginAttempts is the failed-password count that trips a lockout.
	MaxLoginAttempts int

	// LockoutDuration is how long a tripped lockout rejects all attempts.
	LockoutDuration time.Duration

	// RevokeOnUnlink revokes the account's refresh chains when an identity
	// is unlinked. Off by default: the unlinked provider's sessions were
	// authenticated while the link was valid.
	RevokeOnUnlink bool

	// NotifyNewDevice sends Notifier.LoginFromNewDevice when a successful
	// login arrives from an address outside the account's recent set.
	NotifyNewDevice bool

	// KnownAddressTTL is how long a seen login address counts as known.
	KnownAddressTTL time.Duration
}

// SecondFactorConfig defines a public type used by ward APIs.
//
// SecondFactorConfig instances are intended to be configured during
// initialization and then treated as immutable unless documented otherwise.
type SecondFactorConfig struct {
	// Issuer labels provisioning URIs in authenticator apps.
	Issuer string

	// Digits is the OTP length, 6 through 10.
	Digits int

	// Period is the TOTP step length in seconds.
	Period int

	// Skew widens verification by this many steps on each side of now.
	Skew int

	// Algorithm picks the HMAC hash: SHA1, SHA256, or SHA512.
	Algorithm string

	// BackupCodeCount codes are generated on confirm and regenerate.
	BackupCodeCount int

	// BackupCodeLength is the length of each code before formatting.
	BackupCodeLength int

	// MaxAttemptsPerWindow caps second-factor guesses per account per
	// window, independent of the password lockout counter.
	MaxAttemptsPerWindow int

	// AttemptWindow is the fixed window for MaxAttemptsPerWindow.
	AttemptWindow time.Duration
}

// ThrottleConfig defines a public type used by ward APIs.
//
// ThrottleConfig caps how often one caller can drive an account-management
// flow. Each enabled dimension is an independent fixed window; disabling
// both dimensions disables the throttle.
type ThrottleConfig struct {
	// PerSubject throttles the flow's natural key: the email being
	// registered or reset, or the account requesting verification.
	PerSubject bool

	// PerAddress throttles the caller address carried by the context.
	PerAddress bool

	// MaxAttempts is each key's budget per window.
	MaxAttempts int

	// Window is the fixed-window length.
	Window time.Duration
}

func (t ThrottleConfig) enabled() bool {
	return t.PerSubject || t.PerAddress
}

// ChallengeConfig defines a public type used by ward APIs.
//
// ChallengeConfig instances are intended to be configured during
// initialization and then treated as immutable unless documented otherwise.
type ChallengeConfig struct {
	// TTL bounds how long an issued challenge token stays consumable.
	TTL time.Duration

	// MaxAttempts caps failed consume attempts before the challenge burns.
	MaxAttempts int

	// KeyPrefix namespaces the challenge store's Redis keys.
	KeyPrefix string

	// Throttle meters the flow's request and confirm calls. The per-subject
	// window covers issuance; confirms are metered per address only, since
	// per-challenge attempt caps already live on the stored record.
	Throttle ThrottleConfig
}

// AuditConfig defines a public type used by ward APIs.
//
// AuditConfig instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	// QueueSize is the async dispatcher's buffer; events beyond it are
	// dropped, not blocked on.
	QueueSize int

	// ShutdownTimeout bounds the drain on Close.
	ShutdownTimeout time.Duration
}

// Config defines a public type used by ward APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise. The builder deep
// clones the config, so later mutation of the caller's copy never reaches a
// running engine.
type Config struct {
	// ProductionMode tightens validation: development conveniences that are
	// fine in tests become hard errors.
	ProductionMode bool

	JWT          jwt.Config
	Argon2       password.Config
	Tokens       TokenConfig
	Security     SecurityConfig
	SecondFactor SecondFactorConfig
	Registration ThrottleConfig
	Reset        ChallengeConfig
	Verification ChallengeConfig
	Audit        AuditConfig
}

func defaultConfig() *Config {
	return &Config{
		JWT: jwt.Config{
			AccessTTL:     15 * time.Minute,
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "ward",
			Leeway:        30 * time.Second,
			RequireIAT:    true,
		},
		Argon2: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Tokens: TokenConfig{
			RefreshTTL: 30 * 24 * time.Hour,
			Retention:  7 * 24 * time.Hour,
			KeyPrefix:  "rt",
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
			RevokeOnUnlink:   false,
			NotifyNewDevice:  true,
			KnownAddressTTL:  30 * 24 * time.Hour,
		},
		SecondFactor: SecondFactorConfig{
			Issuer:               "ward",
			Digits:               6,
			Period:               30,
			Skew:                 1,
			Algorithm:            "SHA1",
			BackupCodeCount:      8,
			BackupCodeLength:     10,
			MaxAttemptsPerWindow: 6,
			AttemptWindow:        5 * time.Minute,
		},
		Registration: ThrottleConfig{
			PerSubject:  true,
			PerAddress:  true,
			MaxAttempts: 5,
			Window:      time.Hour,
		},
		Reset: ChallengeConfig{
			TTL:         30 * time.Minute,
			MaxAttempts: 5,
			KeyPrefix:   "pwdreset",
			Throttle: ThrottleConfig{
				PerSubject:  true,
				PerAddress:  true,
				MaxAttempts: 5,
				Window:      15 * time.Minute,
			},
		},
		Verification: ChallengeConfig{
			TTL:         24 * time.Hour,
			MaxAttempts: 5,
			KeyPrefix:   "emailverify",
			Throttle: ThrottleConfig{
				PerSubject:  true,
				PerAddress:  true,
				MaxAttempts: 5,
				Window:      15 * time.Minute,
			},
		},
		Audit: AuditConfig{
			QueueSize:       1024,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Validate reports the first configuration problem it finds. The builder
// calls it after applying options; embedders running a custom Config can call
// it directly.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens.RefreshTTL must be positive")
	}
	if c.Tokens.Retention < 0 {
		return errors.New("Tokens.Retention must not be negative")
	}
	if strings.TrimSpace(c.Tokens.KeyPrefix) == "" {
		return errors.New("Tokens.KeyPrefix must not be empty")
	}
	if c.Security.MaxLoginAttempts < 1 {
		return errors.New("Security.MaxLoginAttempts must be at least 1")
	}
	if c.Security.LockoutDuration <= 0 {
		return errors.New("Security.LockoutDuration must be positive")
	}
	if c.Security.NotifyNewDevice && c.Security.KnownAddressTTL <= 0 {
		return errors.New("Security.KnownAddressTTL must be positive when NotifyNewDevice is on")
	}
	if c.SecondFactor.Digits < 6 || c.SecondFactor.Digits > 10 {
		return errors.New("SecondFactor.Digits must be 6 through 10")
	}
	if c.SecondFactor.Period < 15 || c.SecondFactor.Period > 120 {
		return errors.New("SecondFactor.Period must be 15 through 120 seconds")
	}
	if c.SecondFactor.Skew < 0 || c.SecondFactor.Skew > 2 {
		return errors.New("SecondFactor.Skew must be 0 through 2 steps")
	}
	switch strings.ToUpper(c.SecondFactor.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("SecondFactor.Algorithm must be SHA1, SHA256, or SHA512")
	}
	if strings.TrimSpace(c.SecondFactor.Issuer) == "" {
		return errors.New("SecondFactor.Issuer must not be empty")
	}
	if c.SecondFactor.BackupCodeCount < 1 || c.SecondFactor.BackupCodeCount > 32 {
		return errors.New("SecondFactor.BackupCodeCount must be 1 through 32")
	}
	if c.SecondFactor.BackupCodeLength < 8 || c.SecondFactor.BackupCodeLength > 32 {
		return errors.New("SecondFactor.BackupCodeLength must be 8 through 32")
	}
	if c.SecondFactor.MaxAttemptsPerWindow < 1 {
		return errors.New("SecondFactor.MaxAttemptsPerWindow must be at least 1")
	}
	if c.SecondFactor.AttemptWindow <= 0 {
		return errors.New("SecondFactor.AttemptWindow must be positive")
	}
	for _, ch := range []struct {
		name string
		cfg  ChallengeConfig
	}{
		{"Reset", c.Reset},
		{"Verification", c.Verification},
	} {
		if ch.cfg.TTL <= 0 {
			return errors.New(ch.name + ".TTL must be positive")
		}
		if ch.cfg.MaxAttempts < 1 {
			return errors.New(ch.name + ".MaxAttempts must be at least 1")
		}
		if strings.TrimSpace(ch.cfg.KeyPrefix) == "" {
			return errors.New(ch.name + ".KeyPrefix must not be empty")
		}
	}
	for _, th := range []struct {
		name string
		cfg  ThrottleConfig
	}{
		{"Registration", c.Registration},
		{"Reset.Throttle", c.Reset.Throttle},
		{"Verification.Throttle", c.Verification.Throttle},
	} {
		if !th.cfg.enabled() {
			continue
		}
		if th.cfg.MaxAttempts < 1 {
			return errors.New(th.name + ".MaxAttempts must be at least 1")
		}
		if th.cfg.Window <= 0 {
			return errors.New(th.name + ".Window must be positive")
		}
	}
	if c.Audit.QueueSize < 1 {
		return errors.New("Audit.QueueSize must be at least 1")
	}
	if c.Audit.ShutdownTimeout < 0 {
		return errors.New("Audit.ShutdownTimeout must not be negative")
	}

	if c.ProductionMode {
		if c.Security.MaxLoginAttempts > 10 {
			return errors.New("Security.MaxLoginAttempts above 10 defeats lockout in production")
		}
		if c.Security.LockoutDuration < time.Minute {
			return errors.New("Security.LockoutDuration below 1m is ineffective in production")
		}
		if c.JWT.SigningMethod == jwt.MethodHS256 && len(c.JWT.PrivateKey) < 32 {
			return errors.New("HS256 key shorter than 32 bytes is not acceptable in production")
		}
		if c.JWT.AccessTTL > time.Hour {
			return errors.New("JWT.AccessTTL above 1h is not acceptable in production")
		}
	}

	return nil
}

// clone deep copies the config, including the key material the jwt package
// holds by reference.
func (c *Config) clone() *Config {
	out := *c

	if c.JWT.PrivateKey != nil {
		out.JWT.PrivateKey = append([]byte(nil), c.JWT.PrivateKey...)
	}
	if c.JWT.PublicKey != nil {
		out.JWT.PublicKey = append([]byte(nil), c.JWT.PublicKey...)
	}
	if c.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(c.JWT.VerifyKeys))
		for kid, key := range c.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = append([]byte(nil), key...)
		}
	}

	return &out
}
