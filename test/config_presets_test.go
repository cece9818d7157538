package test

import (
	"bytes"
	"testing"

	"github.com/wardauth/ward"
	wardjwt "github.com/wardauth/ward/jwt"
)

func TestDefaultConfigPresetValidates(t *testing.T) {
	cfg := ward.DefaultConfig()

	if cfg.JWT.SigningMethod != wardjwt.MethodEd25519 {
		t.Fatalf("expected ed25519 signing, got %v", cfg.JWT.SigningMethod)
	}
	if len(cfg.JWT.PrivateKey) == 0 || len(cfg.JWT.PublicKey) == 0 {
		t.Fatal("expected preset to include generated ed25519 keys")
	}
	if cfg.ProductionMode {
		t.Fatal("expected production mode off in preset baseline")
	}
	if !cfg.Security.NotifyNewDevice {
		t.Fatal("expected new-device notification to stay enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected preset to validate, got %v", err)
	}
	if err := cfg.Lint().AsError(ward.LintHigh); err != nil {
		t.Fatalf("expected no high-severity lint findings, got %v", err)
	}
}

func TestDefaultConfigPresetGeneratesFreshKeys(t *testing.T) {
	a := ward.DefaultConfig()
	b := ward.DefaultConfig()

	if bytes.Equal(a.JWT.PrivateKey, b.JWT.PrivateKey) {
		t.Fatal("expected each preset call to mint its own keypair")
	}
}

func TestHighSecurityConfigPresetValidates(t *testing.T) {
	cfg := ward.HighSecurityConfig()

	if !cfg.ProductionMode {
		t.Fatal("expected production mode enabled")
	}
	if !cfg.JWT.RequireIAT {
		t.Fatal("expected RequireIAT=true")
	}
	if cfg.SecondFactor.Skew != 0 {
		t.Fatalf("expected zero TOTP skew, got %d", cfg.SecondFactor.Skew)
	}
	if !cfg.Security.RevokeOnUnlink {
		t.Fatal("expected refresh revocation on identity unlink")
	}
	if cfg.Security.MaxLoginAttempts >= ward.DefaultConfig().Security.MaxLoginAttempts {
		t.Fatal("expected a tighter lockout threshold than the baseline")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected high security preset to validate, got %v", err)
	}
	if err := cfg.Lint().AsError(ward.LintWarn); err != nil {
		t.Fatalf("expected hardened preset to lint clean at WARN, got %v", err)
	}
}

func TestHighThroughputConfigPresetValidates(t *testing.T) {
	cfg := ward.HighThroughputConfig()

	if !cfg.ProductionMode {
		t.Fatal("expected production mode enabled")
	}
	if cfg.JWT.AccessTTL <= ward.DefaultConfig().JWT.AccessTTL {
		t.Fatal("expected a longer access TTL than the baseline")
	}
	if cfg.Security.NotifyNewDevice {
		t.Fatal("expected new-device notification disabled for throughput preset")
	}
	if cfg.Audit.QueueSize <= ward.DefaultConfig().Audit.QueueSize {
		t.Fatal("expected a deeper audit queue than the baseline")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected high throughput preset to validate, got %v", err)
	}
	if err := cfg.Lint().AsError(ward.LintWarn); err != nil {
		t.Fatalf("expected throughput preset to lint clean at WARN, got %v", err)
	}
}
