package machine

import (
	"errors"
	"net/http"
	"time"
)

// ErrAlreadySignedIn is an exported constant or variable used by the session engine.
var ErrAlreadySignedIn = errors.New("user already signed in")

// ErrUnauthenticated is an exported constant or variable used by the session engine.
var ErrUnauthenticated = errors.New("user unauthenticated")

// ErrStopped is an exported constant or variable used by the session engine.
var ErrStopped = errors.New("session machine stopped")

// Params are the fixed inputs Transition needs beyond state and event. Now is
// passed in so the function stays pure.
type Params struct {
	Now             time.Time
	SafetyMargin    time.Duration
	RefreshInterval time.Duration
	RetryDelay      time.Duration
	AutoRefresh     bool
	AutoLogin       bool
}

// refreshDelay computes when the next scheduled refresh should fire: a fixed
// interval when configured, otherwise the token lifetime minus the safety
// margin, clamped at zero.
func refreshDelay(p Params, expiresAt time.Time) time.Duration {
	if p.RefreshInterval > 0 {
		return p.RefreshInterval
	}
	if expiresAt.IsZero() {
		return p.RetryDelay
	}
	delay := expiresAt.Sub(p.Now) - p.SafetyMargin
	if delay < 0 {
		return 0
	}
	return delay
}

// refreshRejected reports whether a refresh failure means the refresh token
// itself was rejected (unrecoverable) as opposed to a transient failure.
func refreshRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func flowCause(flow Flow) Cause {
	if flow == FlowRegistration {
		return CauseSignUp
	}
	return CauseSignIn
}

// Transition is the pure state function: (state, context, event) to (state,
// context, effects). It performs no I/O and never blocks; the executor owns
// effect application. Events that the current state does not expect (stale
// transport results, spurious timer fires) return the inputs unchanged.
func Transition(st State, actx Context, ev Event, p Params) (State, Context, []Effect) {
	switch ev.Kind {
	case EventBootstrapToken:
		return transitionBootstrap(st, actx, ev, p)
	case EventSignUpEmailPassword, EventSignInEmailPassword, EventSignInPasswordlessEmail, EventSignInMFATOTP:
		return transitionAuthRequest(st, actx, ev)
	case EventSignOut:
		return transitionSignOut(st, actx, ev)
	case EventRefresh, EventRefreshTick:
		return transitionRefreshRequest(st, actx, ev)
	case EventAuthOK, EventAuthNeedsVerification, EventAuthMFARequired, EventAuthFailed, EventPasswordlessSent:
		return transitionAuthResult(st, actx, ev, p)
	case EventRefreshOK:
		return transitionRefreshOK(st, actx, ev, p)
	case EventRefreshFailed:
		return transitionRefreshFailed(st, actx, ev, p)
	}
	return st, actx, nil
}

func transitionBootstrap(st State, actx Context, ev Event, p Params) (State, Context, []Effect) {
	if st.Phase != PhaseStarting {
		return st, actx, nil
	}

	if ev.HasStored && p.AutoLogin {
		st.Refreshing = true
		st.Epoch++
		actx.Tokens.Refresh = ev.Tokens.Refresh
		return st, actx, []Effect{
			{Kind: EffectCallRefresh, Refresh: ev.Tokens.Refresh, Epoch: st.Epoch},
		}
	}

	st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNoErrors, Epoch: st.Epoch}
	return st, actx, []Effect{{Kind: EffectSignalReady}}
}

func transitionAuthRequest(st State, actx Context, ev Event) (State, Context, []Effect) {
	if st.Phase == PhaseSignedIn {
		// Guard: no transition, no context mutation, caller told immediately.
		return st, actx, []Effect{
			{Kind: EffectSettleCaller, Outcome: Outcome{Local: ErrAlreadySignedIn}},
		}
	}
	if st.Phase != PhaseSignedOut {
		return st, actx, []Effect{
			{Kind: EffectSettleCaller, Outcome: Outcome{Local: ErrStopped}},
		}
	}

	flow := FlowAuthentication
	var call Effect
	switch ev.Kind {
	case EventSignUpEmailPassword:
		flow = FlowRegistration
		call = Effect{Kind: EffectCallSignUp, Email: ev.Email, Password: ev.Password, SignUpOpts: ev.SignUpOpts}
	case EventSignInEmailPassword:
		call = Effect{Kind: EffectCallSignInPassword, Email: ev.Email, Password: ev.Password}
	case EventSignInPasswordlessEmail:
		call = Effect{Kind: EffectCallSignInPasswordless, Email: ev.Email, ActionOpts: ev.ActionOpts}
	case EventSignInMFATOTP:
		flow = FlowMFA
		call = Effect{Kind: EffectCallSignInMFATOTP, Ticket: ev.Ticket, OTP: ev.OTP}
	}

	st = State{Phase: PhaseAuthenticating, AuthFlow: flow, Epoch: st.Epoch + 1}
	call.Flow = flow
	call.Epoch = st.Epoch
	return st, actx, []Effect{{Kind: EffectPark}, call}
}

func transitionSignOut(st State, actx Context, ev Event) (State, Context, []Effect) {
	if st.Phase != PhaseSignedIn {
		// Includes a second sign-out in quick succession: no transport call.
		return st, actx, []Effect{
			{Kind: EffectSettleCaller, Outcome: Outcome{Local: ErrUnauthenticated}},
		}
	}

	refreshToken := actx.Tokens.Refresh
	wasRefreshing := st.Refreshing
	st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNoErrors, Epoch: st.Epoch + 1}
	actx = actx.cleared()

	effects := []Effect{{Kind: EffectCancelTimer}}
	if wasRefreshing {
		// The in-flight refresh is superseded; its eventual result must be
		// discarded (epoch bump) and its caller unparked.
		effects = append(effects, Effect{Kind: EffectSettlePending, Outcome: Outcome{Local: ErrUnauthenticated}})
	}
	effects = append(effects,
		Effect{Kind: EffectClearStorage},
		Effect{Kind: EffectCallSignOut, Refresh: refreshToken, All: ev.All},
		Effect{Kind: EffectNotify, Change: Change{TokenChanged: true, StateChanged: true, SignedIn: false, Cause: CauseSignOut}},
		Effect{Kind: EffectSettleCaller, Outcome: Outcome{}},
	)
	return st, actx, effects
}

func transitionRefreshRequest(st State, actx Context, ev Event) (State, Context, []Effect) {
	if st.Phase != PhaseSignedIn || st.Refreshing {
		if ev.Kind == EventRefreshTick {
			// Spurious fire after cancellation or state change: ignored.
			return st, actx, nil
		}
		return st, actx, []Effect{
			{Kind: EffectSettleCaller, Outcome: Outcome{Local: ErrUnauthenticated}},
		}
	}
	if ev.Kind == EventRefreshTick && ev.Epoch != st.Epoch {
		return st, actx, nil
	}

	st.Refreshing = true
	st.Epoch++
	effects := []Effect{}
	if ev.Kind == EventRefresh {
		effects = append(effects, Effect{Kind: EffectPark})
	}
	effects = append(effects, Effect{Kind: EffectCallRefresh, Refresh: actx.Tokens.Refresh, Epoch: st.Epoch})
	return st, actx, effects
}

func transitionAuthResult(st State, actx Context, ev Event, p Params) (State, Context, []Effect) {
	if st.Phase != PhaseAuthenticating || ev.Epoch != st.Epoch {
		return st, actx, nil
	}

	switch ev.Kind {
	case EventAuthOK:
		st = State{Phase: PhaseSignedIn, Epoch: st.Epoch}
		actx.Tokens = ev.Tokens
		actx.User = ev.User
		tokens := ev.Tokens
		effects := []Effect{{Kind: EffectPersist, Refresh: tokens.Refresh}}
		if p.AutoRefresh {
			effects = append(effects, Effect{Kind: EffectArmTimer, Delay: refreshDelay(p, tokens.AccessExpiresAt), Epoch: st.Epoch})
		}
		effects = append(effects,
			Effect{Kind: EffectNotify, Change: Change{TokenChanged: true, StateChanged: true, SignedIn: true, Cause: flowCause(ev.Flow)}},
			Effect{Kind: EffectSettlePending, Outcome: Outcome{Tokens: &tokens, User: ev.User}},
		)
		return st, actx, effects

	case EventAuthNeedsVerification:
		st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNeedsVerification, Epoch: st.Epoch}
		return st, actx, []Effect{
			{Kind: EffectSettlePending, Outcome: Outcome{NeedsVerification: true}},
		}

	case EventAuthMFARequired:
		st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNoErrors, Epoch: st.Epoch}
		return st, actx, []Effect{
			{Kind: EffectSettlePending, Outcome: Outcome{MFA: ev.MFA}},
		}

	case EventPasswordlessSent:
		st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNoErrors, Epoch: st.Epoch}
		return st, actx, []Effect{
			{Kind: EffectSettlePending, Outcome: Outcome{}},
		}

	case EventAuthFailed:
		st = State{Phase: PhaseSignedOut, SignedOut: SignedOutFailed, Epoch: st.Epoch}
		actx = actx.withError(ev.Flow, ev.Err)
		return st, actx, []Effect{
			{Kind: EffectSettlePending, Outcome: Outcome{APIErr: ev.Err}},
		}
	}
	return st, actx, nil
}

func transitionRefreshOK(st State, actx Context, ev Event, p Params) (State, Context, []Effect) {
	if ev.Epoch != st.Epoch {
		return st, actx, nil
	}

	bootstrap := st.Phase == PhaseStarting && st.Refreshing
	refreshing := st.Phase == PhaseSignedIn && st.Refreshing
	if !bootstrap && !refreshing {
		return st, actx, nil
	}

	st = State{Phase: PhaseSignedIn, Epoch: st.Epoch}
	actx.Tokens = ev.Tokens
	if ev.User != nil {
		actx.User = ev.User
	}
	tokens := ev.Tokens

	cause := CauseRefresh
	if bootstrap {
		cause = CauseImport
	}

	effects := []Effect{{Kind: EffectPersist, Refresh: tokens.Refresh}}
	if p.AutoRefresh {
		effects = append(effects, Effect{Kind: EffectArmTimer, Delay: refreshDelay(p, tokens.AccessExpiresAt), Epoch: st.Epoch})
	}
	effects = append(effects, Effect{Kind: EffectNotify, Change: Change{TokenChanged: true, StateChanged: bootstrap, SignedIn: true, Cause: cause}})
	if bootstrap {
		effects = append(effects, Effect{Kind: EffectSignalReady})
	} else {
		effects = append(effects, Effect{Kind: EffectSettlePending, Outcome: Outcome{Tokens: &tokens, User: actx.User}})
	}
	return st, actx, effects
}

func transitionRefreshFailed(st State, actx Context, ev Event, p Params) (State, Context, []Effect) {
	if ev.Epoch != st.Epoch {
		return st, actx, nil
	}

	switch {
	case st.Phase == PhaseStarting && st.Refreshing:
		st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNoErrors, Epoch: st.Epoch}
		actx = actx.cleared().withError(FlowRefresh, ev.Err)
		effects := []Effect{}
		if ev.Err != nil && refreshRejected(ev.Err.Status) {
			effects = append(effects, Effect{Kind: EffectClearStorage})
		}
		effects = append(effects, Effect{Kind: EffectSignalReady})
		return st, actx, effects

	case st.Phase == PhaseSignedIn && st.Refreshing:
		actx = actx.withError(FlowRefresh, ev.Err)
		if ev.Err != nil && refreshRejected(ev.Err.Status) {
			// Fail closed: the refresh token itself was rejected. The session
			// is unrecoverable and is not retried.
			st = State{Phase: PhaseSignedOut, SignedOut: SignedOutNoErrors, Epoch: st.Epoch + 1}
			actx = actx.cleared()
			return st, actx, []Effect{
				{Kind: EffectCancelTimer},
				{Kind: EffectClearStorage},
				{Kind: EffectNotify, Change: Change{TokenChanged: true, StateChanged: true, SignedIn: false, Cause: CauseRefreshRejected}},
				{Kind: EffectSettlePending, Outcome: Outcome{APIErr: ev.Err}},
			}
		}
		// Transient failure: session stays valid, retry on a short timer.
		st.Refreshing = false
		effects := []Effect{}
		if p.AutoRefresh {
			effects = append(effects, Effect{Kind: EffectArmTimer, Delay: p.RetryDelay, Epoch: st.Epoch})
		}
		effects = append(effects, Effect{Kind: EffectSettlePending, Outcome: Outcome{APIErr: ev.Err}})
		return st, actx, effects
	}
	return st, actx, nil
}
