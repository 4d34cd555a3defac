package internaldefs

import (
	sessionkit "github.com/sessionkit/sessionkit"
)

// CounterDef defines a public type used by sessionkit APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by sessionkit APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session engine.
var CounterDefs = []CounterDef{
	{ID: sessionkit.MetricSignUpSuccess, Name: "sessionkit_signup_success_total", Help: "Successful sign-up flows that established a session."},
	{ID: sessionkit.MetricSignUpFailure, Name: "sessionkit_signup_failure_total", Help: "Failed sign-up flows."},
	{ID: sessionkit.MetricSignUpVerificationPending, Name: "sessionkit_signup_verification_pending_total", Help: "Sign-ups accepted pending email verification."},
	{ID: sessionkit.MetricSignInSuccess, Name: "sessionkit_signin_success_total", Help: "Successful sign-in flows."},
	{ID: sessionkit.MetricSignInFailure, Name: "sessionkit_signin_failure_total", Help: "Failed sign-in flows."},
	{ID: sessionkit.MetricSignInMFARequired, Name: "sessionkit_signin_mfa_required_total", Help: "Sign-in flows answered with an MFA challenge."},
	{ID: sessionkit.MetricRefreshSuccess, Name: "sessionkit_refresh_success_total", Help: "Successful token refreshes."},
	{ID: sessionkit.MetricRefreshFailure, Name: "sessionkit_refresh_failure_total", Help: "Transient refresh failures."},
	{ID: sessionkit.MetricRefreshRejected, Name: "sessionkit_refresh_rejected_total", Help: "Refresh tokens rejected by the backend, ending the session."},
	{ID: sessionkit.MetricSignOut, Name: "sessionkit_signout_total", Help: "Deliberate sign-out operations."},
	{ID: sessionkit.MetricSessionImported, Name: "sessionkit_session_imported_total", Help: "Sessions restored from persisted refresh tokens at startup."},
	{ID: sessionkit.MetricPasswordResetRequested, Name: "sessionkit_password_reset_requested_total", Help: "Password reset requests."},
	{ID: sessionkit.MetricPasswordChanged, Name: "sessionkit_password_changed_total", Help: "Successful password changes."},
	{ID: sessionkit.MetricEmailChangeRequested, Name: "sessionkit_email_change_requested_total", Help: "Email change requests."},
	{ID: sessionkit.MetricVerificationEmailSent, Name: "sessionkit_verification_email_sent_total", Help: "Verification email requests."},
	{ID: sessionkit.MetricActionFailure, Name: "sessionkit_action_failure_total", Help: "Failed one-shot account action flows."},
}

// HistogramDefs is an exported constant or variable used by the session engine.
var HistogramDefs = []HistogramDef{
	{ID: sessionkit.MetricRefreshLatency, Name: "sessionkit_refresh_latency_seconds", Help: "Explicit refresh latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
