package sessionkit

import (
	"time"

	"github.com/sessionkit/sessionkit/internal/machine"
	"github.com/sessionkit/sessionkit/transport"
)

// Clock abstracts the wall clock and timer arming so refresh scheduling can
// be driven deterministically in tests. See [Builder.WithClock].
type Clock = machine.Clock

// Timer is the cancellable handle returned by Clock.AfterFunc.
type Timer = machine.Timer

// FakeClock is a deterministic [Clock] for tests: time only moves when
// Advance is called, and due timers fire synchronously in arming order.
type FakeClock = machine.FakeClock

// NewFakeClock returns a FakeClock pinned at start.
func NewFakeClock(start time.Time) *FakeClock {
	return machine.NewFakeClock(start)
}

// APIError is the data shape of every flow failure: a message plus the HTTP
// status that produced it (0 for connectivity failures). It is carried in
// result structs, never thrown.
type APIError = transport.APIError

// User is the backend's account representation.
type User = transport.User

// MFAChallenge defines a public type used by sessionkit APIs.
//
// MFAChallenge instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MFAChallenge = transport.MFAChallenge

// SignUpOptions defines a public type used by sessionkit APIs.
//
// SignUpOptions instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignUpOptions = transport.SignUpOptions

// ActionOptions defines a public type used by sessionkit APIs.
//
// ActionOptions instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ActionOptions = transport.ActionOptions

// Session is the read-only projection of an authenticated session. One is
// producible if and only if both tokens and the user are present; this is the
// sole authority behind [Client.IsAuthenticated].
type Session struct {
	AccessToken          string
	AccessTokenExpiresIn int64 // seconds until access token expiry
	RefreshToken         string
	User                 *User
}

// SignUpResult defines a public type used by sessionkit APIs.
//
// SignUpResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignUpResult struct {
	// Session is nil with a nil Error when email verification is pending.
	Session *Session
	Error   *APIError
}

// SignInResult defines a public type used by sessionkit APIs.
//
// SignInResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignInResult struct {
	Session *Session
	// MFA is non-nil when the backend wants a second factor before issuing
	// tokens; pass its ticket to [Client.SignInMFATOTP].
	MFA   *MFAChallenge
	Error *APIError
}

// SignOutResult defines a public type used by sessionkit APIs.
//
// SignOutResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignOutResult struct {
	Error *APIError
}

// RefreshResult defines a public type used by sessionkit APIs.
//
// RefreshResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshResult struct {
	Session *Session
	Error   *APIError
}

// ActionResult is the outcome of the one-shot flows (reset password, change
// password, change email, send verification email).
type ActionResult struct {
	Error *APIError
}

// SignInParams is the union of supported sign-in shapes for the generic
// [Client.SignIn] entry point. Exactly one shape must be populated:
// Email+Password, Email alone (passwordless), Provider, or PhoneNumber
// (passwordless SMS).
type SignInParams struct {
	Email    string
	Password string

	// Provider selects OAuth sign-in; it is resolved to a redirect URL, not a
	// transport call.
	Provider string

	// PhoneNumber selects passwordless SMS.
	PhoneNumber string

	Options ActionOptions
}

// AuthState defines a public type used by sessionkit APIs.
//
// AuthState instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuthState string

const (
	// StateSignedIn is an exported constant or variable used by the session engine.
	StateSignedIn AuthState = "SIGNED_IN"
	// StateSignedOut is an exported constant or variable used by the session engine.
	StateSignedOut AuthState = "SIGNED_OUT"
)

// ChangeCause classifies why the auth state or token changed. CauseRefreshRejected
// lets listeners distinguish a session lost to a rejected refresh token from a
// deliberate sign-out.
type ChangeCause string

const (
	// CauseSignUp is an exported constant or variable used by the session engine.
	CauseSignUp ChangeCause = "signup"
	// CauseSignIn is an exported constant or variable used by the session engine.
	CauseSignIn ChangeCause = "signin"
	// CauseRefresh is an exported constant or variable used by the session engine.
	CauseRefresh ChangeCause = "refresh"
	// CauseSignOut is an exported constant or variable used by the session engine.
	CauseSignOut ChangeCause = "signout"
	// CauseRefreshRejected is an exported constant or variable used by the session engine.
	CauseRefreshRejected ChangeCause = "refresh_rejected"
	// CauseImport is an exported constant or variable used by the session engine.
	CauseImport ChangeCause = "import"
)

// AuthStateEvent is delivered to [Client.OnAuthStateChanged] listeners.
type AuthStateEvent struct {
	State   AuthState
	Cause   ChangeCause
	Session *Session
	At      time.Time
}
