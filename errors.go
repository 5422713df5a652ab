package fleetAuth

import (
	"errors"

	"github.com/MrEthical07/fleetAuth/jwt"
	"github.com/MrEthical07/fleetAuth/kv"
	"github.com/MrEthical07/fleetAuth/otp"
)

// Challenge and token errors share identity with the sub-package sentinels,
// so errors.Is works on values returned from either layer.
var (
	// ErrChallengeNotFound is returned when no code is outstanding for the identifier.
	ErrChallengeNotFound = otp.ErrChallengeNotFound
	// ErrChallengeExpired is returned when the outstanding code has expired.
	ErrChallengeExpired = otp.ErrChallengeExpired
	// ErrChallengeAttemptsExceeded is returned once the attempt ceiling is hit
	// and until a new code is issued.
	ErrChallengeAttemptsExceeded = otp.ErrAttemptsExceeded
	// ErrChallengeInvalid matches a wrong code. The concrete error is an
	// *otp.MismatchError carrying the attempts left.
	ErrChallengeInvalid = otp.ErrCodeMismatch
	// ErrInvalidIdentifier is returned for blank identifiers.
	ErrInvalidIdentifier = otp.ErrInvalidIdentifier
	// ErrChallengeContended is returned when concurrent verifications kept
	// changing the challenge. Retrying is safe.
	ErrChallengeContended = otp.ErrVerifyContended

	// ErrTokenInvalid covers tampered, malformed, or wrongly signed tokens and
	// tokens whose principal no longer exists.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrTokenExpired is returned for a correctly signed token past expiry.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrTokenTypeMismatch is returned when a refresh token is used as an
	// access token or the reverse.
	ErrTokenTypeMismatch = jwt.ErrTokenTypeMismatch

	// ErrStoreUnavailable wraps key-value store, limiter and repository failures.
	ErrStoreUnavailable = kv.ErrUnavailable
)

var (
	// ErrChallengeRateLimited is returned when an identifier requests too many codes.
	ErrChallengeRateLimited = errors.New("challenge requests rate limited")
	// ErrTokenRevoked is returned for blacklisted tokens.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshRateLimited is returned when a principal refreshes too often.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrPrincipalNotApproved is a non-retryable denial for principals whose
	// approval state is anything but approved.
	ErrPrincipalNotApproved = errors.New("principal not approved")
	// ErrRoleMismatch is returned when an existing principal logs in under a
	// role it does not hold.
	ErrRoleMismatch = errors.New("role mismatch")
	// ErrRestrictedRoleRegistration is returned when a new principal asks for
	// a role that cannot be self-registered.
	ErrRestrictedRoleRegistration = errors.New("role cannot be self-registered")
	// ErrInvalidRole is returned for unknown role names.
	ErrInvalidRole = errors.New("invalid role")

	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
