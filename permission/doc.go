// Package permission provides a fixed-size action bitmask, an action
// registry, and role grant composition for authorization checks layered on
// top of ward's role-stamped access tokens.
//
// # Model
//
// Ward stamps a role into each access token and leaves authorization to the
// caller. This package is the caller-side half: actions ("account.read",
// "sessions.revoke") are registered once at startup, each receiving a stable
// bit in a [Mask64]; roles are granted sets of actions through [Grants]; a
// request is then authorized with one AND against the role's mask.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Bit positions
// are assigned by [Registry.Register] and are stable for the lifetime of the
// process, not across processes; never persist raw masks.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import ward, jwt, or refresh.
//   - Accept registrations after [Registry.Freeze].
package permission
