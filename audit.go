package ward

import (
	"context"
	"time"
)

// Audit event types emitted by the engine. Security rejections surface a
// coarse error to callers; the audit stream is where the precise reason
// lives.
const (
	AuditLoginSuccess         = "login_success"
	AuditLoginFailed          = "login_failed"
	AuditLoginLocked          = "login_locked"
	AuditOAuthLogin           = "oauth_login"
	AuditLogout               = "logout"
	AuditLogoutEverywhere     = "logout_everywhere"
	AuditRefreshRotated       = "refresh_rotated"
	AuditRefreshFailed        = "refresh_failed"
	AuditRefreshReuse         = "refresh_reuse"
	AuditRegistered           = "account_registered"
	AuditPasswordChanged      = "password_changed"
	AuditPasswordResetRequest = "password_reset_request"
	AuditPasswordReset        = "password_reset"
	AuditVerificationRequest  = "email_verification_request"
	AuditEmailVerified        = "email_verified"
	AuditSecondFactorSetup    = "second_factor_setup"
	AuditSecondFactorEnabled  = "second_factor_enabled"
	AuditSecondFactorDisable  = "second_factor_disabled"
	AuditBackupCodesIssued    = "backup_codes_issued"
	AuditIdentityLinked       = "identity_linked"
	AuditIdentityUnlinked     = "identity_unlinked"
	AuditAccountUnlocked      = "account_unlocked"
	AuditAccountLocked        = "account_locked"
)

// AuditEvent defines a public type used by ward APIs.
//
// AuditEvent instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type AuditEvent struct {
	Timestamp time.Time // UTC
	Type      string
	AccountID string // empty when the account is unknown or undisclosed
	IP        string
	ClientID  string
	Success   bool
	Error     string // internal reason code, not the caller-facing error
	Metadata  map[string]string
}

// AuditSink receives engine audit events. Emission is fire-and-forget: the
// engine calls Emit from a dispatcher goroutine, swallows errors, and drops
// events rather than block an authentication path on a slow sink.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent) error
}

// NoopSink is the default [AuditSink]; it discards every event.
type NoopSink struct{}

// Emit implements [AuditSink].
func (NoopSink) Emit(context.Context, AuditEvent) error { return nil }
