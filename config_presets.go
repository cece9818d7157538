package ward

import (
	"crypto/ed25519"
	"crypto/rand"
	"time"
)

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig returns the baseline configuration with a freshly generated
// Ed25519 signing keypair, ready for a single-instance engine. Deployments
// running more than one instance, or surviving restarts, must replace the
// generated keys with managed ones: a new keypair per process invalidates
// every access token the previous process signed.
//
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	cfg := *defaultConfig()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err == nil {
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	}

	return cfg
}

// HighSecurityConfig describes the highsecurityconfig operation and its observable behavior.
//
// HighSecurityConfig starts from [DefaultConfig] and tightens every knob that
// trades convenience for exposure: production-mode validation, a short access
// TTL, minimal clock leeway, zero TOTP skew, a low lockout threshold, heavier
// argon2id costs, and refresh revocation on identity unlink.
//
// HighSecurityConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()

	cfg.ProductionMode = true

	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.Leeway = 10 * time.Second
	cfg.JWT.RequireIAT = true

	cfg.Argon2.Memory = 128 * 1024
	cfg.Argon2.Time = 4

	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LockoutDuration = 30 * time.Minute
	cfg.Security.RevokeOnUnlink = true

	cfg.SecondFactor.Skew = 0
	cfg.SecondFactor.MaxAttemptsPerWindow = 4
	cfg.SecondFactor.AttemptWindow = 10 * time.Minute

	cfg.Reset.TTL = 15 * time.Minute
	cfg.Reset.MaxAttempts = 3

	cfg.Registration.MaxAttempts = 3
	cfg.Reset.Throttle.MaxAttempts = 3
	cfg.Verification.Throttle.MaxAttempts = 3

	return cfg
}

// HighThroughputConfig describes the highthroughputconfig operation and its observable behavior.
//
// HighThroughputConfig starts from [DefaultConfig] and trims per-login
// overhead for deployments where authentication is on the hot path: a longer
// access TTL so callers rotate less often, new-device notification off to
// drop its Redis round trip, and a deeper audit queue so bursts do not shed
// events. Rotation atomicity and reuse detection are not relaxed.
//
// HighThroughputConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()

	cfg.ProductionMode = true

	cfg.JWT.AccessTTL = 30 * time.Minute

	cfg.Argon2.Time = 2

	cfg.Security.NotifyNewDevice = false

	cfg.Audit.QueueSize = 8192

	return cfg
}
