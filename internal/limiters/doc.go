// Package limiters throttles the account-management flows: registration,
// password reset, and email verification.
//
// # Throttles
//
// A [Throttle] guards one flow with up to two fixed windows built on the
// internal/rate primitives: one keyed by the flow's subject (an email, an
// account ID), one keyed by caller address. Both dimensions draw from one
// [Policy] budget, and a call must clear every enabled window.
//
// Throttles meter flows that create state or send mail. They are not the
// login lockout (that lives on the account record) and not the second-factor
// attempt window (the engine meters that directly).
//
// All throttles are nil-safe: Allow on a nil *Throttle admits everything,
// which is how a disabled policy behaves.
//
// # Architecture boundaries
//
// Key namespaces derive from the flow name given at construction; two flows
// never share budget. Errors are the rate package's sentinels — this package
// adds no error vocabulary of its own.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling except internal/rate.
//   - Decide consequences — flows map the returned errors onto their own
//     error surface and audit stream.
package limiters
