// Package limiters provides fixed-window request throttles backed by Redis.
//
// # Limiters
//
//   - [FixedWindow] with namespace "otp": per-identifier challenge requests.
//   - [FixedWindow] with namespace "refresh": per-principal refresh calls.
//
// Keys have the shape "rl:<namespace>:<subject>" so that session teardown can
// sweep every counter for a principal with "rl:*:<subject>".
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import fleetAuth or any sibling internal package.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
