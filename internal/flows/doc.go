// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRequestChallenge, RunCompleteChallenge, RunRefresh,
// RunValidate, RunLogout) accepts a typed dependency struct and returns a
// result value carrying a failure kind. Flows are generic over the root
// package's principal type so that role and approval decisions stay with the
// closed enumerations defined there.
//
// # Architecture boundaries
//
// Flow functions coordinate the challenge service, token manager, revocation
// registry, limiters, and teardown. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import fleetAuth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency hooks.
package flows
