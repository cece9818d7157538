// Package rate meters second-factor attempts independently from the
// password lockout counter.
//
// Failed TOTP or backup-code guesses never touch the account's
// failed-password counter, so without this package an attacker holding a
// stolen password could brute-force codes freely. Two implementations share
// the [Limiter] contract: [RedisWindow] (fixed-window Redis counter, shared
// across instances) and [Local] (in-process token bucket for single-instance
// embedders without Redis).
//
// # What this package must NOT do
//
//   - No account lockout: the lockout state machine lives with the account
//     record, not here.
//   - No request throttling: upstream middleware owns per-IP and per-route
//     limits.
//   - No persistence of its own beyond the counter keys.
package rate
