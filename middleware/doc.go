// Package middleware exposes HTTP middleware adapters for bearer-token
// enforcement built on top of ward.Engine verification.
//
// # Guards
//
//   - [Guard] — verifies the bearer access token on every request.
//   - [RequireRole] — Guard plus a role check.
//   - [RequireAdmin] — shorthand for RequireRole with the admin role.
//   - [RequireAction] — Guard plus a permission.Grants action check.
//
// Each guard reads the Authorization header, calls Engine.VerifyAccess, and
// injects the verified principal into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — token decisions are delegated to
// Engine.VerifyAccess and action decisions to permission.Grants.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the account store (verification is stateless).
//   - Distinguish expired from forged tokens in its responses; both are 401.
package middleware
