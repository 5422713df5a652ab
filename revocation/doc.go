// Package revocation records tokens invalidated before their natural expiry.
//
// Entries are keyed by the SHA-256 of the raw token and live exactly as long
// as the token would have, so registry size tracks outstanding token lifetime
// rather than historical logout volume.
package revocation
