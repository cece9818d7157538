// Package ward provides an authentication and session-lifecycle engine with
// argon2id password login, JWT access tokens, rotating opaque refresh tokens
// with reuse detection, a TOTP second factor with backup codes, and linked
// external identities.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// ward is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (TokenPair, Account, MetricsSnapshot, etc.). The caller owns
// account persistence behind [AccountStore]; ward owns token and challenge
// state in Redis. Coordination helpers — challenge stores, rate limiting,
// token encoding — live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Return a different error for "unknown email" than for "wrong password";
//     credential rejections are deliberately indistinguishable.
//   - Log, store, or echo a raw password, TOTP secret, backup code, or
//     refresh-token secret. Only digests persist.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// VerifyAccess is the hot path. It must not touch Redis or the account store;
// a signature check and claim validation is the whole cost. Authenticate,
// Rotate, and the account operations are allowed store round-trips, and
// Authenticate deliberately pays one argon2id verification on every arm,
// real or decoy.
package ward
