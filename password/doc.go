// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads parameters back out of the digest, so hashes produced
// under older tuning keep verifying after a parameter change. [Argon2.Verify]
// treats malformed digests as a mismatch rather than an error. The
// [Argon2.NeedsUpgrade] check supports transparent parameter upgrades: if the
// stored hash was produced with weaker parameters it returns true so the
// caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length, reuse
// history) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other ward package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
