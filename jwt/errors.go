package jwt

import "errors"

var (
	// ErrTokenInvalid covers malformed, tampered, or wrongly signed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenTypeMismatch is returned when a refresh token is presented as an
	// access token or the reverse.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	// ErrPrincipalMismatch is returned by Refresh when the refresh token belongs
	// to a different principal than the supplied subject.
	ErrPrincipalMismatch = errors.New("token principal mismatch")
	// ErrInvalidConfig is returned by NewManager.
	ErrInvalidConfig = errors.New("invalid jwt configuration")
)
