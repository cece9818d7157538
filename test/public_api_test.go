package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/wardauth/ward"
	"github.com/wardauth/ward/middleware"
	"github.com/wardauth/ward/permission"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = ward.New

	var _ *ward.Engine
	var _ ward.Config
	var _ ward.AuthResult
	var _ ward.TokenPair
	var _ ward.Principal
	var _ ward.Account
	var _ ward.SecondFactorSetup
	var _ ward.AccountStore
	var _ ward.Provider
	var _ ward.Notifier
	var _ ward.AuditSink

	var _ error = ward.ErrInvalidCredentials
	var _ error = ward.ErrAccountLocked
	var _ error = ward.ErrChallengeRequired
	var _ error = ward.ErrTokenInvalid
	var _ error = ward.ErrTokenExpired
	var _ error = ward.ErrTokenReused
	var _ error = ward.ErrRateLimited

	var _ func(*ward.Engine) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*ward.Engine, ward.Role) func(http.Handler) http.Handler = middleware.RequireRole
	var _ func(*ward.Engine) func(http.Handler) http.Handler = middleware.RequireAdmin
	var _ func(*ward.Engine, *permission.Grants, string) func(http.Handler) http.Handler = middleware.RequireAction

	var _ func(*ward.Engine, context.Context, string, string, string) (*ward.AuthResult, error) = (*ward.Engine).Authenticate
	var _ func(*ward.Engine, context.Context, string) (*ward.TokenPair, error) = (*ward.Engine).Rotate
	var _ func(*ward.Engine, string) (*ward.Principal, error) = (*ward.Engine).VerifyAccess
	var _ func(*ward.Engine, context.Context, string) error = (*ward.Engine).Logout
	var _ func(*ward.Engine, context.Context, string) (int, error) = (*ward.Engine).LogoutEverywhere
}
