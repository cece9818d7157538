package ward

import (
	"fmt"
	"strings"
	"time"

	"github.com/wardauth/ward/jwt"
)

// LintSeverity defines a public type used by ward APIs.
type LintSeverity uint8

// Lint severities, ordered. Info marks a deliberate trade-off worth knowing
// about, Warn a setting most deployments should not run with, High a setting
// that undermines a security property the engine is supposed to provide.
const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

// String returns the severity's stable upper-case label.
func (s LintSeverity) String() string {
	switch s {
	case LintHigh:
		return "HIGH"
	case LintWarn:
		return "WARN"
	default:
		return "INFO"
	}
}

// LintWarning defines a public type used by ward APIs.
//
// Code is stable and machine-matchable; Message is for humans and may change
// between releases.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings defines a public type used by ward APIs.
type LintWarnings []LintWarning

// Codes returns the warning codes in emission order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above the given severity.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	out := make(LintWarnings, 0, len(ws))
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds the warnings at or above the given severity into a single
// error, or nil when none reach it. Embedders gate startup with it:
//
//	if err := cfg.Lint().AsError(ward.LintHigh); err != nil {
//		log.Fatal(err)
//	}
func (ws LintWarnings) AsError(min LintSeverity) error {
	flagged := ws.BySeverity(min)
	if len(flagged) == 0 {
		return nil
	}
	parts := make([]string, 0, len(flagged))
	for _, w := range flagged {
		parts = append(parts, fmt.Sprintf("%s %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint describes the lint operation and its observable behavior.
//
// Lint reports settings that are valid but questionable. Unlike
// [Config.Validate] it never blocks anything: it exists so embedders can
// surface weak configurations in logs or fail startup on their own policy
// via [LintWarnings.AsError].
//
// Lint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	if c == nil {
		return ws
	}

	add := func(code string, severity LintSeverity, message string) {
		ws = append(ws, LintWarning{Code: code, Severity: severity, Message: message})
	}

	if !c.ProductionMode {
		add("production_mode_off", LintInfo,
			"production-mode validation is off; development conveniences are not rejected")
	}

	if c.JWT.SigningMethod == jwt.MethodHS256 {
		add("signing_hs256", LintWarn,
			"HS256 shares one secret between signing and verification; prefer Ed25519")
	}
	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", LintWarn,
			"access tokens outlive revocation for "+c.JWT.AccessTTL.String())
	}
	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn,
			"clock leeway above 1m stretches every token's effective lifetime")
	}

	if c.Tokens.RefreshTTL > 90*24*time.Hour {
		add("refresh_ttl_long", LintInfo,
			"refresh tokens live past 90 days; a stolen device stays signed in that long")
	}
	if c.Tokens.Retention < 24*time.Hour {
		add("reuse_window_short", LintHigh,
			"retention under 24h forgets rotated records early, blinding reuse detection")
	}

	if c.Argon2.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn,
			"argon2id memory below 64 MiB weakens offline cracking resistance")
	}

	if c.Security.MaxLoginAttempts > 10 {
		add("lockout_threshold_high", LintWarn,
			"more than 10 attempts before lockout leaves room for online guessing")
	}
	if c.Security.LockoutDuration < time.Minute {
		add("lockout_duration_short", LintWarn,
			"a lockout under 1m barely slows an online guesser")
	}
	if !c.Security.NotifyNewDevice {
		add("new_device_notification_off", LintInfo,
			"successful logins from unseen addresses will not be reported")
	}

	if !c.Registration.enabled() {
		add("registration_throttle_off", LintWarn,
			"unthrottled registration lets one caller mass-create accounts")
	}

	if c.SecondFactor.Skew >= 2 {
		add("second_factor_skew_wide", LintInfo,
			"a 2-step skew accepts codes up to "+
				(time.Duration(2*c.SecondFactor.Period)*time.Second).String()+" old")
	}
	if c.SecondFactor.BackupCodeCount < 4 {
		add("backup_codes_few", LintInfo,
			"fewer than 4 backup codes risks recovery lockout before regeneration")
	}

	if c.Audit.QueueSize < 256 {
		add("audit_queue_small", LintInfo,
			"audit queues under 256 shed events during login bursts")
	}

	return ws
}
