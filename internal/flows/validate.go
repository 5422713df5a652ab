package flows

import (
	"context"

	"github.com/MrEthical07/fleetAuth/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureToken
	ValidateFailureRevocationCheck
	ValidateFailureRevoked
	ValidateFailureLookup
	ValidateFailurePrincipalNotFound
	ValidateFailureNotApproved
)

// ValidateResult returns either claims/principal or a classified failure.
// Expired distinguishes expiry from tampering for telemetry only.
type ValidateResult[P any] struct {
	Failure   ValidateFailureKind
	Err       error
	Expired   bool
	Claims    *jwt.AccessClaims
	Principal P
	Resolved  bool
}

// ValidateDeps captures access-token validation dependencies. A nil FindByID
// skips principal resolution and trusts the token claims.
type ValidateDeps[P any] struct {
	Tokens      TokenValidator
	Revocations RevocationChecker
	FindByID    PrincipalLookup[P]
	Approved    func(P) error
}

// RunValidate verifies the token, checks revocation, and, when configured,
// re-resolves the principal so that approval changes apply to tokens already
// issued.
func RunValidate[P any](ctx context.Context, token string, deps ValidateDeps[P]) ValidateResult[P] {
	var res ValidateResult[P]

	v := deps.Tokens.ValidateAccess(token)
	if !v.Valid {
		res.Failure, res.Err, res.Expired = ValidateFailureToken, v.Err, v.Expired
		return res
	}
	res.Claims = v.Claims

	if deps.Revocations != nil {
		revoked, err := deps.Revocations.IsRevoked(ctx, token)
		if err != nil {
			res.Failure, res.Err = ValidateFailureRevocationCheck, err
			return res
		}
		if revoked {
			res.Failure = ValidateFailureRevoked
			return res
		}
	}

	if deps.FindByID == nil {
		return res
	}

	p, found, err := deps.FindByID(ctx, v.Claims.PrincipalID)
	if err != nil {
		res.Failure, res.Err = ValidateFailureLookup, err
		return res
	}
	if !found {
		res.Failure = ValidateFailurePrincipalNotFound
		return res
	}
	res.Principal, res.Resolved = p, true

	if err := deps.Approved(p); err != nil {
		res.Failure, res.Err = ValidateFailureNotApproved, err
		return res
	}
	return res
}
