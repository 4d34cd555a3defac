package machine

import (
	"time"

	"github.com/sessionkit/sessionkit/transport"
)

// EventKind defines a public type used by sessionkit APIs.
//
// EventKind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventKind uint8

const (
	// EventBootstrapToken is the internal bootstrap event carrying whatever
	// refresh token (possibly none) was found in storage at start.
	EventBootstrapToken EventKind = iota
	// EventSignUpEmailPassword is an exported constant or variable used by the session engine.
	EventSignUpEmailPassword
	// EventSignInEmailPassword is an exported constant or variable used by the session engine.
	EventSignInEmailPassword
	// EventSignInPasswordlessEmail is an exported constant or variable used by the session engine.
	EventSignInPasswordlessEmail
	// EventSignInMFATOTP is an exported constant or variable used by the session engine.
	EventSignInMFATOTP
	// EventSignOut is an exported constant or variable used by the session engine.
	EventSignOut
	// EventRefresh is a caller-forced refresh.
	EventRefresh
	// EventRefreshTick is the scheduler timer firing.
	EventRefreshTick
	// EventAuthOK is an internal transport result: tokens and user issued.
	EventAuthOK
	// EventAuthNeedsVerification is an internal transport result: protocol
	// success, no tokens, email verification pending.
	EventAuthNeedsVerification
	// EventAuthMFARequired is an internal transport result: an MFA ticket was
	// minted instead of tokens.
	EventAuthMFARequired
	// EventAuthFailed is an internal transport result.
	EventAuthFailed
	// EventPasswordlessSent is an internal transport result: magic link issued
	// out-of-band, no tokens ever come back on this path.
	EventPasswordlessSent
	// EventRefreshOK is an internal transport result.
	EventRefreshOK
	// EventRefreshFailed is an internal transport result.
	EventRefreshFailed
)

// Event is the tagged union fed to [Transition]. Only the fields matching
// Kind are meaningful.
type Event struct {
	Kind EventKind
	Flow Flow

	Email    string
	Password string
	Ticket   string
	OTP      string
	All      bool

	SignUpOpts transport.SignUpOptions
	ActionOpts transport.ActionOptions

	Tokens Tokens
	User   *transport.User
	MFA    *transport.MFAChallenge
	Err    *transport.APIError

	// Epoch stamps transport results and timer fires with the call/arm epoch
	// they belong to, so results outliving their originating state are dropped.
	Epoch uint64

	HasStored bool
}

// Cause classifies a state or token change for listeners. CauseRefreshRejected
// distinguishes a session lost to a rejected refresh token from a deliberate
// sign-out; the session surface itself is identical in both cases.
type Cause string

const (
	// CauseSignUp is an exported constant or variable used by the session engine.
	CauseSignUp Cause = "signup"
	// CauseSignIn is an exported constant or variable used by the session engine.
	CauseSignIn Cause = "signin"
	// CauseRefresh is an exported constant or variable used by the session engine.
	CauseRefresh Cause = "refresh"
	// CauseSignOut is an exported constant or variable used by the session engine.
	CauseSignOut Cause = "signout"
	// CauseRefreshRejected is an exported constant or variable used by the session engine.
	CauseRefreshRejected Cause = "refresh_rejected"
	// CauseImport is an exported constant or variable used by the session engine.
	CauseImport Cause = "import"
)

// Change describes one observable transition for listener fan-out.
type Change struct {
	TokenChanged bool
	StateChanged bool
	SignedIn     bool
	Cause        Cause
}

// Outcome settles a caller's outstanding request. Exactly one of the error
// fields is set on failure; Local carries precondition sentinels that never
// involved the network.
type Outcome struct {
	Tokens            *Tokens
	User              *transport.User
	MFA               *transport.MFAChallenge
	NeedsVerification bool
	APIErr            *transport.APIError
	Local             error
}

// EffectKind defines a public type used by sessionkit APIs.
//
// EffectKind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EffectKind uint8

const (
	// EffectCallSignUp is an exported constant or variable used by the session engine.
	EffectCallSignUp EffectKind = iota
	// EffectCallSignInPassword is an exported constant or variable used by the session engine.
	EffectCallSignInPassword
	// EffectCallSignInPasswordless is an exported constant or variable used by the session engine.
	EffectCallSignInPasswordless
	// EffectCallSignInMFATOTP is an exported constant or variable used by the session engine.
	EffectCallSignInMFATOTP
	// EffectCallRefresh is an exported constant or variable used by the session engine.
	EffectCallRefresh
	// EffectCallSignOut is the best-effort network sign-out; its result is
	// discarded and never re-enters the machine.
	EffectCallSignOut
	// EffectPersist writes the refresh token through the storage adapter.
	EffectPersist
	// EffectClearStorage is an exported constant or variable used by the session engine.
	EffectClearStorage
	// EffectArmTimer is an exported constant or variable used by the session engine.
	EffectArmTimer
	// EffectCancelTimer is an exported constant or variable used by the session engine.
	EffectCancelTimer
	// EffectNotify is an exported constant or variable used by the session engine.
	EffectNotify
	// EffectPark parks the current caller until the in-flight transport call
	// it started settles.
	EffectPark
	// EffectSettleCaller settles the caller that delivered the current event.
	EffectSettleCaller
	// EffectSettlePending settles the previously parked caller.
	EffectSettlePending
	// EffectSignalReady marks the end of bootstrap.
	EffectSignalReady
)

// Effect is one side effect ordered by [Transition]. The executor applies
// effects in slice order, synchronously within the run-to-completion step,
// except transport calls which it launches asynchronously.
type Effect struct {
	Kind EffectKind

	Email    string
	Password string
	Ticket   string
	OTP      string
	Refresh  string
	All      bool
	Flow     Flow

	SignUpOpts transport.SignUpOptions
	ActionOpts transport.ActionOptions

	Delay   time.Duration
	Epoch   uint64
	Change  Change
	Outcome Outcome
}
