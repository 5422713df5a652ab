package flows

import (
	"context"

	"github.com/MrEthical07/fleetAuth/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureRevocationCheck
	RefreshFailureRevoked
	RefreshFailureToken
	RefreshFailureRateLimited
	RefreshFailureLookup
	RefreshFailurePrincipalNotFound
	RefreshFailureNotApproved
	RefreshFailureIssue
)

// RefreshResult carries either the new access token or failure metadata.
type RefreshResult[P any] struct {
	Failure     RefreshFailureKind
	Err         error
	PrincipalID string
	Principal   P
	Tokens      jwt.TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps[P any] struct {
	Revocations RevocationChecker
	Tokens      TokenValidator
	RateLimiter Limiter
	FindByID    PrincipalLookup[P]
	Approved    func(P) error
	Refresh     func(refreshToken string, p P) (jwt.TokenPair, error)
}

// RunRefresh checks revocation, verifies the refresh token, re-resolves the
// principal, re-applies the approval gate, and issues a new access token.
// The refresh token itself is not rotated.
func RunRefresh[P any](ctx context.Context, refreshToken string, deps RefreshDeps[P]) RefreshResult[P] {
	var res RefreshResult[P]

	if deps.Revocations != nil {
		revoked, err := deps.Revocations.IsRevoked(ctx, refreshToken)
		if err != nil {
			res.Failure, res.Err = RefreshFailureRevocationCheck, err
			return res
		}
		if revoked {
			res.Failure = RefreshFailureRevoked
			return res
		}
	}

	v := deps.Tokens.ValidateRefresh(refreshToken)
	if !v.Valid {
		res.Failure, res.Err = RefreshFailureToken, v.Err
		return res
	}
	res.PrincipalID = v.PrincipalID

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.Allow(ctx, v.PrincipalID); err != nil {
			res.Failure, res.Err = RefreshFailureRateLimited, err
			return res
		}
	}

	p, found, err := deps.FindByID(ctx, v.PrincipalID)
	if err != nil {
		res.Failure, res.Err = RefreshFailureLookup, err
		return res
	}
	if !found {
		res.Failure = RefreshFailurePrincipalNotFound
		return res
	}
	res.Principal = p

	if err := deps.Approved(p); err != nil {
		res.Failure, res.Err = RefreshFailureNotApproved, err
		return res
	}

	pair, err := deps.Refresh(refreshToken, p)
	if err != nil {
		res.Failure, res.Err = RefreshFailureIssue, err
		return res
	}
	res.Tokens = pair
	return res
}
