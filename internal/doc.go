// Package internal contains helper utilities that are intentionally private to ward,
// including secure random generation and token encoding helpers.
//
// # Sub-packages
//
//   - rate — Redis-backed rate limit primitives plus a local in-process fallback
//   - stores — short-lived challenge record stores (password reset, email verification)
//
// # What this package must NOT do
//
//   - Export types that appear in the public ward API.
//   - Be imported by any package outside the ward module.
package internal
