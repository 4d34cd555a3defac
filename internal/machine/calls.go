package machine

import (
	"context"
	"time"

	"github.com/sessionkit/sessionkit/jwt"
	"github.com/sessionkit/sessionkit/transport"
)

const signOutTimeout = 10 * time.Second

// launch starts the transport call an effect ordered, in its own goroutine.
// The result re-enters the mailbox as an event stamped with the effect epoch;
// the machine is never blocked while the call is in flight.
func (m *Machine) launch(eff Effect) {
	switch eff.Kind {
	case EffectCallSignUp:
		go m.callSignUp(eff)
	case EffectCallSignInPassword:
		go m.callSignInPassword(eff)
	case EffectCallSignInPasswordless:
		go m.callSignInPasswordless(eff)
	case EffectCallSignInMFATOTP:
		go m.callSignInMFATOTP(eff)
	case EffectCallRefresh:
		go m.callRefresh(eff)
	case EffectCallSignOut:
		go m.callSignOut(eff)
	}
}

func (m *Machine) callSignUp(eff Effect) {
	session, apiErr := m.deps.Backend.SignUpEmailPassword(m.callCtx, eff.Email, eff.Password, eff.SignUpOpts)
	switch {
	case apiErr != nil:
		m.post(Event{Kind: EventAuthFailed, Flow: eff.Flow, Err: apiErr, Epoch: eff.Epoch})
	case session == nil:
		m.post(Event{Kind: EventAuthNeedsVerification, Flow: eff.Flow, Epoch: eff.Epoch})
	default:
		m.post(Event{Kind: EventAuthOK, Flow: eff.Flow, Tokens: m.tokensFrom(session), User: session.User, Epoch: eff.Epoch})
	}
}

func (m *Machine) callSignInPassword(eff Effect) {
	session, mfa, apiErr := m.deps.Backend.SignInEmailPassword(m.callCtx, eff.Email, eff.Password)
	switch {
	case apiErr != nil:
		m.post(Event{Kind: EventAuthFailed, Flow: eff.Flow, Err: apiErr, Epoch: eff.Epoch})
	case mfa != nil:
		m.post(Event{Kind: EventAuthMFARequired, Flow: eff.Flow, MFA: mfa, Epoch: eff.Epoch})
	case session == nil:
		m.post(Event{Kind: EventAuthNeedsVerification, Flow: eff.Flow, Epoch: eff.Epoch})
	default:
		m.post(Event{Kind: EventAuthOK, Flow: eff.Flow, Tokens: m.tokensFrom(session), User: session.User, Epoch: eff.Epoch})
	}
}

func (m *Machine) callSignInPasswordless(eff Effect) {
	if apiErr := m.deps.Backend.SignInPasswordlessEmail(m.callCtx, eff.Email, eff.ActionOpts); apiErr != nil {
		m.post(Event{Kind: EventAuthFailed, Flow: eff.Flow, Err: apiErr, Epoch: eff.Epoch})
		return
	}
	m.post(Event{Kind: EventPasswordlessSent, Flow: eff.Flow, Epoch: eff.Epoch})
}

func (m *Machine) callSignInMFATOTP(eff Effect) {
	session, apiErr := m.deps.Backend.SignInMFATOTP(m.callCtx, eff.Ticket, eff.OTP)
	switch {
	case apiErr != nil:
		m.post(Event{Kind: EventAuthFailed, Flow: eff.Flow, Err: apiErr, Epoch: eff.Epoch})
	case session == nil:
		m.post(Event{Kind: EventAuthFailed, Flow: eff.Flow, Err: &transport.APIError{Message: "backend returned no session", Status: 500}, Epoch: eff.Epoch})
	default:
		m.post(Event{Kind: EventAuthOK, Flow: eff.Flow, Tokens: m.tokensFrom(session), User: session.User, Epoch: eff.Epoch})
	}
}

func (m *Machine) callRefresh(eff Effect) {
	session, apiErr := m.deps.Backend.RefreshToken(m.callCtx, eff.Refresh)
	switch {
	case apiErr != nil:
		m.post(Event{Kind: EventRefreshFailed, Err: apiErr, Epoch: eff.Epoch})
	case session == nil:
		m.post(Event{Kind: EventRefreshFailed, Err: &transport.APIError{Message: "backend returned no session", Status: 500}, Epoch: eff.Epoch})
	default:
		m.post(Event{Kind: EventRefreshOK, Tokens: m.tokensFrom(session), User: session.User, Epoch: eff.Epoch})
	}
}

// callSignOut is best effort: local sign-out has already completed by the time
// this runs, and an unreachable backend must not undo it.
func (m *Machine) callSignOut(eff Effect) {
	if eff.Refresh == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()

	if apiErr := m.deps.Backend.SignOut(ctx, eff.Refresh, eff.All); apiErr != nil {
		m.deps.Warn("sessionkit: network sign-out failed: %v", apiErr)
	}
}

// tokensFrom normalizes a transport payload into Tokens. When the backend
// omits expiresIn, the expiry is recovered from the access token's exp claim.
func (m *Machine) tokensFrom(session *transport.SessionPayload) Tokens {
	tokens := Tokens{
		Access:  session.AccessToken,
		Refresh: session.RefreshToken,
	}
	if session.AccessTokenExpiresIn > 0 {
		tokens.AccessExpiresAt = m.deps.Clock.Now().Add(time.Duration(session.AccessTokenExpiresIn) * time.Second)
	} else if expiry, err := jwt.Expiry(session.AccessToken); err == nil {
		tokens.AccessExpiresAt = expiry
	}
	return tokens
}
