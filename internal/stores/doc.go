// Package stores holds the engine's Redis-backed side state: single-use
// challenges (password reset, email verification) and the seen-address sets
// behind new-device notifications.
//
// Challenge consumption runs under WATCH so two presentations of the same
// token cannot both succeed. Records store secret hashes only; the bearer
// secret exists in the issued token and nowhere else.
//
// # What this package must NOT do
//
//   - No account data: accounts live behind the AccountStore interface.
//   - No refresh tokens: chain records belong to the refresh package.
//   - No policy: TTLs and attempt caps are passed in by the engine.
package stores
