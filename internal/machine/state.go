package machine

import (
	"time"

	"github.com/sessionkit/sessionkit/transport"
)

// Flow names the originating operation for error bookkeeping. Errors are
// retained under their flow until superseded by the next attempt of the same
// flow, never auto-cleared.
type Flow string

const (
	// FlowRegistration is an exported constant or variable used by the session engine.
	FlowRegistration Flow = "registration"
	// FlowAuthentication is an exported constant or variable used by the session engine.
	FlowAuthentication Flow = "authentication"
	// FlowMFA is an exported constant or variable used by the session engine.
	FlowMFA Flow = "mfa"
	// FlowRefresh is an exported constant or variable used by the session engine.
	FlowRefresh Flow = "refresh"
	// FlowSignOut is an exported constant or variable used by the session engine.
	FlowSignOut Flow = "signout"
)

// Phase is the top level of the session state union.
type Phase uint8

const (
	// PhaseStarting is the bootstrap phase before the first settled state:
	// the machine is importing a persisted refresh token (or finding none).
	PhaseStarting Phase = iota
	// PhaseSignedOut is an exported constant or variable used by the session engine.
	PhaseSignedOut
	// PhaseAuthenticating is an exported constant or variable used by the session engine.
	PhaseAuthenticating
	// PhaseSignedIn is an exported constant or variable used by the session engine.
	PhaseSignedIn
)

// SignedOutReason is the sub-state of PhaseSignedOut.
type SignedOutReason uint8

const (
	// SignedOutNoErrors is an exported constant or variable used by the session engine.
	SignedOutNoErrors SignedOutReason = iota
	// SignedOutNeedsVerification marks a protocol-level success that issued no
	// tokens because the backend requires email verification first.
	SignedOutNeedsVerification
	// SignedOutFailed is an exported constant or variable used by the session engine.
	SignedOutFailed
)

// State is the tagged-union session state. Sub-state fields are meaningful
// only under their phase: SignedOut under PhaseSignedOut, AuthFlow under
// PhaseAuthenticating, Refreshing under PhaseSignedIn.
type State struct {
	Phase      Phase
	SignedOut  SignedOutReason
	AuthFlow   Flow
	Refreshing bool

	// Epoch increments on every transport call launch and on sign-out. A
	// transport result or timer fire whose epoch no longer matches is stale
	// and must be dropped.
	Epoch uint64
}

// String describes the string operation and its observable behavior.
//
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s State) String() string {
	switch s.Phase {
	case PhaseStarting:
		return "starting"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseSignedIn:
		if s.Refreshing {
			return "signedIn.refreshing"
		}
		return "signedIn"
	case PhaseSignedOut:
		switch s.SignedOut {
		case SignedOutNeedsVerification:
			return "signedOut.needsVerification"
		case SignedOutFailed:
			return "signedOut.failed"
		}
		return "signedOut.noErrors"
	}
	return "invalid"
}

// Tokens is the credential pair held in the auth context. AccessExpiresAt is
// zero when unknown.
type Tokens struct {
	Access          string
	AccessExpiresAt time.Time
	Refresh         string
}

// Context is the auth context: the single mutable credential record owned by
// the machine. It is passed by value through Transition; the executor holds
// the authoritative copy.
type Context struct {
	Tokens Tokens
	User   *transport.User
	Errors map[Flow]*transport.APIError
}

func (c Context) withError(flow Flow, apiErr *transport.APIError) Context {
	errs := make(map[Flow]*transport.APIError, len(c.Errors)+1)
	for k, v := range c.Errors {
		errs[k] = v
	}
	errs[flow] = apiErr
	c.Errors = errs
	return c
}

func (c Context) cleared() Context {
	c.Tokens = Tokens{}
	c.User = nil
	return c
}

// Authenticated reports whether the context can produce a session: both
// tokens and the user must be present simultaneously.
func (c Context) Authenticated() bool {
	return c.Tokens.Access != "" && c.Tokens.Refresh != "" && c.User != nil
}
