// Package internal contains helper utilities that are intentionally private to fleetAuth,
// including secure numeric code generation and one-way secret hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - limiters: Redis-backed challenge and refresh throttles
//
// # What this package must NOT do
//
//   - Export types that appear in the public fleetAuth API.
//   - Be imported by any package outside the fleetAuth module.
package internal
