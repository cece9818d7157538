// Package memory provides an in-process [ward.AccountStore] backed by maps
// and a mutex.
//
// It exists for tests, examples, and single-process deployments. Every read
// hands out a deep clone and every write goes through the version check, so
// the engine sees the same optimistic-concurrency contract a real database
// gives it.
//
// # What this package must NOT do
//
//   - Persist anything; process exit loses all accounts.
//   - Hand out a pointer that aliases stored state.
package memory
