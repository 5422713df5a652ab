// Package fleetAuth is the authentication and session security core of the
// fleet backend: one-time-passcode challenges, signed access/refresh token
// pairs, a token revocation registry, and per-principal session teardown.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// fleetAuth is the public surface. It exposes [Engine], [Builder], [Config],
// the [Role] and [ApprovalState] enumerations, and the capabilities it
// consumes: [PrincipalRepository] for principals, [ChallengeNotifier] for
// code delivery, and a TTL key-value store (kv.Store). Flow orchestration,
// throttling and audit dispatch live under internal/.
//
// # Principal state
//
// The principal aggregate is owned elsewhere. This package reads its roles
// and approval state, creates it only through self-registration, and never
// changes approval state. Token claims carry a snapshot of that state which
// is treated as a cache: refresh and resolving validations load the
// principal again and re-apply the approval gate.
//
// # Events
//
// Operations return domain events in their results. The Engine does not
// publish them.
package fleetAuth
