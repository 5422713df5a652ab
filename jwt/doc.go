// Package jwt issues and verifies signed access/refresh token pairs.
//
// Access and refresh tokens are signed with distinct keys and carry a type
// tag inside the signed payload; a token of one kind never validates as the
// other even when the keys are configured identically.
package jwt
