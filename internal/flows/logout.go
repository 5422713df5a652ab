package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/fleetAuth/jwt"
)

// LogoutFailureKind classifies logout failures. Only lookup failures abort.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureLookup
)

// LogoutResult reports what logout did. Known is false for unknown ids,
// which is still a success.
type LogoutResult[P any] struct {
	Failure       LogoutFailureKind
	Err           error
	Known         bool
	Principal     P
	Revoked       bool
	TokenID       string
	RevokeErr     error
	TeardownFails int
	ClearErrs     []error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps[P any] struct {
	FindByID       PrincipalLookup[P]
	Identifiers    func(P) []string
	// Decode must return nil for tokens whose signature does not verify.
	Decode         func(token string) *jwt.AccessClaims
	Revoker        Revoker
	// MaxLifetime caps the revocation TTL. Zero disables the cap.
	MaxLifetime    time.Duration
	Now            func() time.Time
	Teardown       func(ctx context.Context, principalID, identifier string) (failed int)
	ClearChallenge func(ctx context.Context, identifier string) error
	Warn           func(ctx context.Context, msg string, args ...any)
}

// RunLogout revokes the presented token until its natural expiry, tears down
// transient state, and clears outstanding challenges. Revocation and
// teardown problems are logged, never returned.
func RunLogout[P any](ctx context.Context, principalID, token string, deps LogoutDeps[P]) LogoutResult[P] {
	var res LogoutResult[P]

	p, found, err := deps.FindByID(ctx, principalID)
	if err != nil {
		res.Failure, res.Err = LogoutFailureLookup, err
		return res
	}
	if !found {
		return res
	}
	res.Known, res.Principal = true, p

	if token != "" && deps.Revoker != nil {
		res.Revoked, res.TokenID, res.RevokeErr = revokePresented(ctx, principalID, token, deps)
		if res.RevokeErr != nil && deps.Warn != nil {
			deps.Warn(ctx, "logout token revocation failed", "principal_id", principalID, "error", res.RevokeErr)
		}
	}

	identifiers := deps.Identifiers(p)
	primary := ""
	if len(identifiers) > 0 {
		primary = identifiers[0]
	}
	if deps.Teardown != nil {
		res.TeardownFails = deps.Teardown(ctx, principalID, primary)
	}

	if deps.ClearChallenge != nil {
		for _, id := range identifiers {
			if err := deps.ClearChallenge(ctx, id); err != nil {
				res.ClearErrs = append(res.ClearErrs, err)
				if deps.Warn != nil {
					deps.Warn(ctx, "logout challenge clear failed", "principal_id", principalID, "identifier", id, "error", err)
				}
			}
		}
	}
	return res
}

// revokePresented blacklists token only when it is ours and belongs to
// principalID.
func revokePresented[P any](ctx context.Context, principalID, token string, deps LogoutDeps[P]) (bool, string, error) {
	claims := deps.Decode(token)
	if claims == nil || claims.ExpiresAt == nil || claims.PrincipalID != principalID {
		return false, "", nil
	}
	expiry := claims.ExpiresAt.Time
	if deps.MaxLifetime > 0 {
		now := time.Now
		if deps.Now != nil {
			now = deps.Now
		}
		if limit := now().Add(deps.MaxLifetime); expiry.After(limit) {
			expiry = limit
		}
	}
	ok, err := deps.Revoker.Revoke(ctx, token, expiry)
	return ok, claims.ID, err
}
