package otp

import (
	"errors"
	"fmt"
)

var (
	// ErrChallengeNotFound is returned when no challenge exists for an identifier.
	ErrChallengeNotFound = errors.New("otp: challenge not found")
	// ErrChallengeExpired is returned when the challenge deadline has passed.
	ErrChallengeExpired = errors.New("otp: challenge expired")
	// ErrAttemptsExceeded is returned once the attempt ceiling has been reached.
	ErrAttemptsExceeded = errors.New("otp: attempts exceeded")
	// ErrCodeMismatch is the sentinel matched by [*MismatchError].
	ErrCodeMismatch = errors.New("otp: code mismatch")
	// ErrInvalidIdentifier is returned for blank identifiers.
	ErrInvalidIdentifier = errors.New("otp: invalid identifier")
	// ErrVerifyContended is returned when the challenge kept changing under a
	// Verify call and no round could complete.
	ErrVerifyContended = errors.New("otp: challenge contended")
	// ErrInvalidConfig is returned by NewService for unusable policy values.
	ErrInvalidConfig = errors.New("otp: invalid config")
)

// MismatchError reports a wrong code together with the attempts left.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Invalid OTP code. %d attempts remaining", e.Remaining)
}

// Is makes errors.Is(err, ErrCodeMismatch) hold.
func (e *MismatchError) Is(target error) bool {
	return target == ErrCodeMismatch
}
