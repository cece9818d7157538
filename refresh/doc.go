// Package refresh implements the rotating refresh-token chain store.
//
// # Token format
//
// Opaque base64url-encoded bearer tokens containing a 16-byte record ID and a
// 32-byte random secret. Tokens are never stored in plaintext — the store
// retains only the SHA-256 hash of the secret.
//
// # Chain model
//
// Every issued token starts a chain; each rotation marks the presented record
// revoked, points its replaced-by field at the fresh record, and adds the
// fresh record to the same chain. Presenting a record that is already revoked
// is treated as reuse and revokes every record in the chain in a single
// atomic script. Records are marked, never deleted; Redis TTLs (record
// lifetime plus a retention window) are the only pruning.
//
// # Record layout
//
// Records are binary blobs with fixed offsets so the rotation script can
// patch the status byte and replaced-by pointer in place:
//
//	[0]      format version
//	[1]      status (0 active, 1 revoked)
//	[2:18]   chain ID
//	[18:34]  replaced-by ID (zero = chain tail)
//	[34:42]  issued-at unix (big endian)
//	[42:50]  expires-at unix (big endian)
//	[50:82]  secret SHA-256
//	[82]     account ID length, then the bytes
//
// # Architecture boundaries
//
// This package owns record persistence, rotation atomicity, and reuse
// detection. Deciding what reuse MEANS (audit events, error mapping to the
// caller) is the Engine's job.
//
// # What this package must NOT do
//
//   - Import ward or jwt.
//   - Mint access tokens or touch account records.
//   - Delete records outside of TTL-based retention.
package refresh
