// Package postgres provides a PostgreSQL-backed [ward.AccountStore] built on
// sqlx and lib/pq.
//
// Optimistic concurrency maps onto a guarded UPDATE: every write carries
// WHERE version = expected, and zero affected rows reports a conflict instead
// of an error. Email uniqueness rides on a CITEXT column, and the identity
// uniqueness rules map onto named constraints so violations translate to the
// right sentinel.
//
// # What this package must NOT do
//
//   - Run migrations on its own; [Store.EnsureSchema] is a development
//     convenience, not a migration system.
//   - Interpret credentials or enforce authentication policy.
package postgres
