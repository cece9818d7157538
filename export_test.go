package ward

import "github.com/wardauth/ward/password"

// Test-only bridges so the external ward_test package can reach the
// internals its tests exercise.

var (
	DefaultConfigForTest       = defaultConfig
	HotpCodeForTest            = hotpCode
	NewAuditDispatcherForTest  = newAuditDispatcher
	VerifyLatencyBoundsForTest = verifyLatencyBounds
)

// StoreOf exposes the engine's account store to external tests.
func StoreOf(e *Engine) AccountStore { return e.store }

// ConfigOf exposes the engine's resolved configuration to external tests.
func ConfigOf(e *Engine) Config { return e.config }

// PasswordHasherOf exposes the engine's password hasher to external tests.
func PasswordHasherOf(e *Engine) *password.Argon2 { return e.passwordHash }
