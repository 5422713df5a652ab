package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/fleetAuth/jwt"
	"github.com/MrEthical07/fleetAuth/otp"
)

// RequestChallengeFailureKind classifies requestChallenge failures.
type RequestChallengeFailureKind int

const (
	RequestChallengeFailureNone RequestChallengeFailureKind = iota
	RequestChallengeFailureInvalidIdentifier
	RequestChallengeFailureRateLimited
	RequestChallengeFailureIssue
)

// RequestChallengeResult carries the issued challenge deadline. DeliveryErr
// is set when the notifier failed; the challenge is still valid then.
type RequestChallengeResult struct {
	Failure     RequestChallengeFailureKind
	Err         error
	Identifier  string
	ExpiresAt   time.Time
	Channel     otp.Channel
	DeliveryErr error
}

// RequestChallengeDeps captures challenge issuance dependencies.
type RequestChallengeDeps struct {
	Normalize   func(string) string
	RateLimiter Limiter
	Issue       func(ctx context.Context, identifier string) (otp.Challenge, error)
	Deliver     func(ctx context.Context, identifier string, ch otp.Challenge) error
	Warn        func(ctx context.Context, msg string, args ...any)
}

// RunRequestChallenge throttles, issues, and synchronously delivers a code.
// Delivery failure is reported but does not fail the call.
func RunRequestChallenge(ctx context.Context, identifier string, deps RequestChallengeDeps) RequestChallengeResult {
	id := deps.Normalize(identifier)
	if id == "" {
		return RequestChallengeResult{Failure: RequestChallengeFailureInvalidIdentifier, Err: otp.ErrInvalidIdentifier}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.Allow(ctx, id); err != nil {
			return RequestChallengeResult{Failure: RequestChallengeFailureRateLimited, Err: err, Identifier: id}
		}
	}

	ch, err := deps.Issue(ctx, id)
	if err != nil {
		return RequestChallengeResult{Failure: RequestChallengeFailureIssue, Err: err, Identifier: id}
	}

	res := RequestChallengeResult{
		Identifier: id,
		ExpiresAt:  ch.ExpiresAt,
		Channel:    ch.Channel,
	}
	if deps.Deliver != nil {
		if err := deps.Deliver(ctx, id, ch); err != nil {
			res.DeliveryErr = err
			if deps.Warn != nil {
				deps.Warn(ctx, "otp delivery failed", "identifier", id, "channel", ch.Channel.String(), "error", err)
			}
		}
	}
	return res
}

// CompleteChallengeFailureKind classifies completeChallenge failures.
type CompleteChallengeFailureKind int

const (
	CompleteChallengeFailureNone CompleteChallengeFailureKind = iota
	CompleteChallengeFailureChallenge
	CompleteChallengeFailureLookup
	CompleteChallengeFailureRoleMismatch
	CompleteChallengeFailureRestrictedRole
	CompleteChallengeFailureRegister
	CompleteChallengeFailureNotApproved
	CompleteChallengeFailureIssue
)

// CompleteChallengeResult carries the resolved principal and tokens.
// Registered is true when the principal was created by this call; it stays
// set on a NotApproved failure so the caller can still publish the event.
type CompleteChallengeResult[P any] struct {
	Failure    CompleteChallengeFailureKind
	Err        error
	Identifier string
	Principal  P
	Registered bool
	Tokens     jwt.TokenPair
}

// CompleteChallengeDeps captures challenge completion dependencies. The
// role-dependent hooks are bound to the requested role by the caller.
type CompleteChallengeDeps[P any] struct {
	Normalize        func(string) string
	Verify           func(ctx context.Context, identifier, code string) error
	FindByIdentifier func(ctx context.Context, identifier string) (P, bool, error)
	RoleMatches      func(P) bool
	CanSelfRegister  func() bool
	Register         func(ctx context.Context, identifier string) (P, error)
	Approved         func(P) error
	IssueTokens      func(P) (jwt.TokenPair, error)
}

// RunCompleteChallenge verifies the code, resolves or registers the
// principal, applies the approval gate, and issues a token pair.
func RunCompleteChallenge[P any](ctx context.Context, identifier, code string, deps CompleteChallengeDeps[P]) CompleteChallengeResult[P] {
	id := deps.Normalize(identifier)
	res := CompleteChallengeResult[P]{Identifier: id}

	if err := deps.Verify(ctx, id, code); err != nil {
		res.Failure, res.Err = CompleteChallengeFailureChallenge, err
		return res
	}

	p, found, err := deps.FindByIdentifier(ctx, id)
	if err != nil {
		res.Failure, res.Err = CompleteChallengeFailureLookup, err
		return res
	}

	if found {
		if !deps.RoleMatches(p) {
			res.Failure = CompleteChallengeFailureRoleMismatch
			return res
		}
	} else {
		if !deps.CanSelfRegister() {
			res.Failure = CompleteChallengeFailureRestrictedRole
			return res
		}
		p, err = deps.Register(ctx, id)
		if err != nil {
			res.Failure, res.Err = CompleteChallengeFailureRegister, err
			return res
		}
		res.Registered = true
	}
	res.Principal = p

	if err := deps.Approved(p); err != nil {
		res.Failure, res.Err = CompleteChallengeFailureNotApproved, err
		return res
	}

	pair, err := deps.IssueTokens(p)
	if err != nil {
		res.Failure, res.Err = CompleteChallengeFailureIssue, err
		return res
	}
	res.Tokens = pair
	return res
}
