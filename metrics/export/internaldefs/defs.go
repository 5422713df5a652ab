package internaldefs

import (
	"strconv"

	fleetAuth "github.com/MrEthical07/fleetAuth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   fleetAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   fleetAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: fleetAuth.MetricChallengeIssued, Name: "fleetauth_challenge_issued_total", Help: "Issued OTP challenges."},
	{ID: fleetAuth.MetricChallengeRateLimited, Name: "fleetauth_challenge_rate_limited_total", Help: "Challenge requests denied by the per-identifier throttle."},
	{ID: fleetAuth.MetricChallengeDeliveryFailed, Name: "fleetauth_challenge_delivery_failed_total", Help: "Challenges whose delivery to the notifier failed."},
	{ID: fleetAuth.MetricChallengeVerifySuccess, Name: "fleetauth_challenge_verify_success_total", Help: "Challenge codes verified successfully."},
	{ID: fleetAuth.MetricChallengeVerifyFailure, Name: "fleetauth_challenge_verify_failure_total", Help: "Challenge verifications that failed."},
	{ID: fleetAuth.MetricChallengeAttemptsExceeded, Name: "fleetauth_challenge_attempts_exceeded_total", Help: "Challenges locked after the attempt ceiling."},
	{ID: fleetAuth.MetricPrincipalRegistered, Name: "fleetauth_principal_registered_total", Help: "Principals created by self-registration."},
	{ID: fleetAuth.MetricLoginSuccess, Name: "fleetauth_login_success_total", Help: "Completed logins that issued tokens."},
	{ID: fleetAuth.MetricLoginFailure, Name: "fleetauth_login_failure_total", Help: "Failed login completions."},
	{ID: fleetAuth.MetricLoginNotApproved, Name: "fleetauth_login_not_approved_total", Help: "Logins refused by the approval gate."},
	{ID: fleetAuth.MetricRefreshSuccess, Name: "fleetauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: fleetAuth.MetricRefreshFailure, Name: "fleetauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: fleetAuth.MetricRefreshRateLimited, Name: "fleetauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: fleetAuth.MetricValidateSuccess, Name: "fleetauth_validate_success_total", Help: "Access tokens that validated."},
	{ID: fleetAuth.MetricValidateFailure, Name: "fleetauth_validate_failure_total", Help: "Access tokens that failed validation."},
	{ID: fleetAuth.MetricTokenRevoked, Name: "fleetauth_token_revoked_total", Help: "Tokens written to the revocation registry."},
	{ID: fleetAuth.MetricRevokedTokenPresented, Name: "fleetauth_revoked_token_presented_total", Help: "Revoked tokens presented for validation or refresh."},
	{ID: fleetAuth.MetricLogout, Name: "fleetauth_logout_total", Help: "Logout operations for known principals."},
	{ID: fleetAuth.MetricTeardownFailure, Name: "fleetauth_teardown_failure_total", Help: "Session teardown patterns that failed to clear."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: fleetAuth.MetricValidateLatency, Name: "fleetauth_validate_latency_seconds", Help: "Access-token validation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// engine bucket is the implicit +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabel returns the Prometheus-style le value of engine bucket i.
func BucketLabel(i int) string {
	if i >= len(HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramUpperBounds[i], 'g', -1, 64)
}

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
