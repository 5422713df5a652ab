// Package middleware adapts Engine access-token validation to net/http.
//
// [Guard] reads the Authorization bearer token, calls
// Engine.ValidateAccessToken, and stores the result in the request context
// for [ValidationFromContext]. [RequireRole] narrows a guarded route to
// principals holding one of the given roles.
//
// Store outages surface as 503; every other rejection is a bare 401 so
// callers cannot distinguish revoked from forged tokens.
package middleware
