package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/fleetAuth/jwt"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation. P is the root
// package's principal type; flows never inspect it directly.
type Deps[P any] struct {
	RequestChallenge  RequestChallengeDeps
	CompleteChallenge CompleteChallengeDeps[P]
	Refresh           RefreshDeps[P]
	Validate          ValidateDeps[P]
	Logout            LogoutDeps[P]
}

// PrincipalLookup resolves principals by id. found is false for unknown ids.
type PrincipalLookup[P any] func(ctx context.Context, id string) (p P, found bool, err error)

// Limiter is the fixed-window throttle used by request and refresh flows.
type Limiter interface {
	Allow(ctx context.Context, subject string) error
}

// RevocationChecker answers blacklist queries.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Revoker blacklists a token until its natural expiry.
type Revoker interface {
	Revoke(ctx context.Context, token string, naturalExpiry time.Time) (bool, error)
}

// TokenValidator is the subset of the jwt manager used by flows.
type TokenValidator interface {
	ValidateAccess(token string) jwt.AccessValidation
	ValidateRefresh(token string) jwt.RefreshValidation
}
