package ward

import "time"

// SecurityReport defines a public type used by ward APIs.
//
// SecurityReport is a read-only snapshot of the security-relevant knobs an
// engine is actually running with, for operator dashboards and support
// tooling. It contains no key material and no per-account state.
type SecurityReport struct {
	ProductionMode   bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ReuseRetention   time.Duration
	Argon2           PasswordConfigReport

	LockoutThreshold int
	LockoutDuration  time.Duration

	SecondFactorAlgorithm  string
	SecondFactorDigits     int
	SecondFactorAttemptCap int
	BackupCodeCount        int

	RevokeOnUnlink        bool
	NewDeviceNotification bool

	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
}

// PasswordConfigReport defines a public type used by ward APIs.
//
// PasswordConfigReport mirrors the argon2id cost parameters in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport describes the securityreport operation and its observable behavior.
//
// SecurityReport does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:   e.config.ProductionMode,
		SigningAlgorithm: string(e.config.JWT.SigningMethod),
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.Tokens.RefreshTTL,
		ReuseRetention:   e.config.Tokens.Retention,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Argon2.Memory,
			Time:        e.config.Argon2.Time,
			Parallelism: e.config.Argon2.Parallelism,
			SaltLength:  e.config.Argon2.SaltLength,
			KeyLength:   e.config.Argon2.KeyLength,
		},
		LockoutThreshold: e.config.Security.MaxLoginAttempts,
		LockoutDuration:  e.config.Security.LockoutDuration,

		SecondFactorAlgorithm:  e.config.SecondFactor.Algorithm,
		SecondFactorDigits:     e.config.SecondFactor.Digits,
		SecondFactorAttemptCap: e.config.SecondFactor.MaxAttemptsPerWindow,
		BackupCodeCount:        e.config.SecondFactor.BackupCodeCount,

		RevokeOnUnlink:        e.config.Security.RevokeOnUnlink,
		NewDeviceNotification: e.config.Security.NotifyNewDevice,

		PasswordResetTTL:     e.config.Reset.TTL,
		EmailVerificationTTL: e.config.Verification.TTL,
	}
}
