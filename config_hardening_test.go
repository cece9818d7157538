package ward

import (
	"strings"
	"testing"
	"time"

	"github.com/wardauth/ward/jwt"
)

// productionBase is a config that should sail through production-mode
// validation; each test breaks exactly one property.
func productionBase() *Config {
	cfg := defaultConfig()
	cfg.ProductionMode = true
	return cfg
}

func TestProductionModeAcceptsSaneConfig(t *testing.T) {
	if err := productionBase().Validate(); err != nil {
		t.Fatalf("expected production defaults to validate, got %v", err)
	}
}

func TestProductionModeRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name: "loose lockout threshold",
			mutate: func(c *Config) {
				c.Security.MaxLoginAttempts = 50
			},
			wantMsg: "MaxLoginAttempts",
		},
		{
			name: "token lockout duration",
			mutate: func(c *Config) {
				c.Security.LockoutDuration = 5 * time.Second
			},
			wantMsg: "LockoutDuration",
		},
		{
			name: "short hs256 key",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = jwt.MethodHS256
				c.JWT.PrivateKey = []byte("too-short")
			},
			wantMsg: "HS256",
		},
		{
			name: "long-lived access tokens",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 12 * time.Hour
			},
			wantMsg: "AccessTTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := productionBase()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected production mode to reject")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected message about %s, got %q", tt.wantMsg, err)
			}
		})
	}
}

func TestProductionModeOffToleratesDevSettings(t *testing.T) {
	// The same settings production mode rejects are legal for development.
	cfg := defaultConfig()
	cfg.Security.MaxLoginAttempts = 50
	cfg.JWT.AccessTTL = 12 * time.Hour
	cfg.JWT.SigningMethod = jwt.MethodHS256
	cfg.JWT.PrivateKey = []byte("short-dev-key")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected dev settings to validate outside production mode, got %v", err)
	}
}
