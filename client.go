package sessionkit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sessionkit/sessionkit/internal/machine"
	"github.com/sessionkit/sessionkit/transport"
)

// Client is the promise-bridging façade over the session state machine. All
// flow methods block until their flow reaches a terminal state and report
// failures as data in the result struct; the returned Go error is reserved
// for context cancellation, shutdown, and programmer misuse.
//
// Client instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Client struct {
	config     Config
	backend    transport.Backend
	machine    *machine.Machine
	dispatcher *eventDispatcher
	metrics    *Metrics
	clock      machine.Clock

	startOnce sync.Once
	started   atomic.Bool
}

// Start runs the state machine. Build calls it automatically unless
// Config.Session.Start is false; calling it twice is harmless.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		c.machine.Start()
	})
}

// Close stops the machine and the listener dispatcher. Outstanding calls
// settle with [ErrClientStopped].
func (c *Client) Close() {
	if c.started.Load() {
		c.machine.Stop()
	}
	c.dispatcher.Close()
}

// EventsDropped reports how many listener notifications were discarded
// because the dispatcher buffer was full.
func (c *Client) EventsDropped() uint64 {
	return c.dispatcher.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// SignUpEmailPassword registers a new account. A nil Session with a nil Error
// means the backend requires email verification before issuing tokens.
func (c *Client) SignUpEmailPassword(ctx context.Context, email, password string, opts *SignUpOptions) (SignUpResult, error) {
	if !c.started.Load() {
		return SignUpResult{}, ErrClientNotStarted
	}

	var signUpOpts SignUpOptions
	if opts != nil {
		signUpOpts = *opts
	}
	out, err := c.machine.SignUpEmailPassword(ctx, email, password, signUpOpts)
	if err != nil {
		return SignUpResult{}, err
	}

	switch {
	case out.Local != nil:
		c.metrics.Inc(MetricSignUpFailure)
		return SignUpResult{Error: localAPIError(out.Local)}, nil
	case out.APIErr != nil:
		c.metrics.Inc(MetricSignUpFailure)
		return SignUpResult{Error: out.APIErr}, nil
	case out.NeedsVerification:
		c.metrics.Inc(MetricSignUpVerificationPending)
		return SignUpResult{}, nil
	default:
		return SignUpResult{Session: c.sessionFromOutcome(out)}, nil
	}
}

// SignIn dispatches on the populated shape of params: email+password,
// passwordless email, OAuth provider, or passwordless SMS.
func (c *Client) SignIn(ctx context.Context, params SignInParams) (SignInResult, error) {
	switch {
	case params.Email != "" && params.Password != "":
		return c.SignInEmailPassword(ctx, params.Email, params.Password)
	case params.Email != "":
		return c.SignInPasswordlessEmail(ctx, params.Email, &params.Options)
	case params.PhoneNumber != "":
		return c.SignInPasswordlessSMS(ctx, params.PhoneNumber, &params.Options)
	case params.Provider != "":
		return SignInResult{Error: &APIError{
			Message: "provider sign-in is a browser redirect; use ProviderSignInURL",
			Status:  400,
		}}, nil
	}
	return SignInResult{}, ErrSignInParamsInvalid
}

// SignInEmailPassword describes the signinemailpassword operation and its observable behavior.
//
// SignInEmailPassword may return an error when input validation, dependency calls, or security checks fail.
// SignInEmailPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SignInEmailPassword(ctx context.Context, email, password string) (SignInResult, error) {
	if !c.started.Load() {
		return SignInResult{}, ErrClientNotStarted
	}

	out, err := c.machine.SignInEmailPassword(ctx, email, password)
	if err != nil {
		return SignInResult{}, err
	}
	return c.signInResult(out), nil
}

// SignInPasswordlessEmail asks the backend to mail a magic link. Success
// resolves with neither session nor error; tokens only arrive after the
// out-of-band ticket is consumed.
func (c *Client) SignInPasswordlessEmail(ctx context.Context, email string, opts *ActionOptions) (SignInResult, error) {
	if !c.started.Load() {
		return SignInResult{}, ErrClientNotStarted
	}

	var actionOpts ActionOptions
	if opts != nil {
		actionOpts = *opts
	}
	out, err := c.machine.SignInPasswordlessEmail(ctx, email, actionOpts)
	if err != nil {
		return SignInResult{}, err
	}
	return c.signInResult(out), nil
}

// SignInPasswordlessSMS is not implemented by the backend contract yet. It
// resolves with a not-implemented APIError rather than fabricating success.
func (c *Client) SignInPasswordlessSMS(_ context.Context, _ string, _ *ActionOptions) (SignInResult, error) {
	if !c.started.Load() {
		return SignInResult{}, ErrClientNotStarted
	}
	c.metrics.Inc(MetricSignInFailure)
	return SignInResult{Error: localAPIError(ErrNotImplemented)}, nil
}

// SignInMFATOTP completes a password sign-in that answered with an MFA
// ticket.
func (c *Client) SignInMFATOTP(ctx context.Context, ticket, otp string) (SignInResult, error) {
	if !c.started.Load() {
		return SignInResult{}, ErrClientNotStarted
	}

	out, err := c.machine.SignInMFATOTP(ctx, ticket, otp)
	if err != nil {
		return SignInResult{}, err
	}
	return c.signInResult(out), nil
}

func (c *Client) signInResult(out machine.Outcome) SignInResult {
	switch {
	case out.Local != nil:
		c.metrics.Inc(MetricSignInFailure)
		return SignInResult{Error: localAPIError(out.Local)}
	case out.APIErr != nil:
		c.metrics.Inc(MetricSignInFailure)
		return SignInResult{Error: out.APIErr}
	case out.MFA != nil:
		c.metrics.Inc(MetricSignInMFARequired)
		return SignInResult{MFA: out.MFA}
	case out.NeedsVerification:
		c.metrics.Inc(MetricSignInFailure)
		return SignInResult{Error: localAPIError(ErrEmailNeedsVerification)}
	case out.Tokens != nil:
		return SignInResult{Session: c.sessionFromOutcome(out)}
	default:
		// Passwordless request accepted: no session yet, no error.
		return SignInResult{}
	}
}

// SignOut terminates the local session immediately and notifies the backend
// best-effort. An unreachable backend never blocks local sign-out.
func (c *Client) SignOut(ctx context.Context) (SignOutResult, error) {
	return c.signOut(ctx, false)
}

// SignOutAll additionally asks the backend to invalidate every session of the
// user, not just this client's refresh token.
func (c *Client) SignOutAll(ctx context.Context) (SignOutResult, error) {
	return c.signOut(ctx, true)
}

func (c *Client) signOut(ctx context.Context, all bool) (SignOutResult, error) {
	if !c.started.Load() {
		return SignOutResult{}, ErrClientNotStarted
	}

	out, err := c.machine.SignOut(ctx, all)
	if err != nil {
		return SignOutResult{}, err
	}
	if out.Local != nil {
		return SignOutResult{Error: localAPIError(out.Local)}, nil
	}
	return SignOutResult{}, nil
}

// RefreshSession forces an immediate token refresh instead of waiting for the
// scheduled one.
func (c *Client) RefreshSession(ctx context.Context) (RefreshResult, error) {
	if !c.started.Load() {
		return RefreshResult{}, ErrClientNotStarted
	}

	start := c.clock.Now()
	out, err := c.machine.Refresh(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	c.metrics.Observe(MetricRefreshLatency, c.clock.Now().Sub(start))
	switch {
	case out.Local != nil:
		return RefreshResult{Error: localAPIError(out.Local)}, nil
	case out.APIErr != nil:
		c.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{Error: out.APIErr}, nil
	default:
		return RefreshResult{Session: c.sessionFromOutcome(out)}, nil
	}
}

// IsAuthenticated reports whether a session is currently established. It can
// be false before bootstrap resolves; use [Client.IsAuthenticatedAsync] to
// wait for the first settled state.
func (c *Client) IsAuthenticated() bool {
	return c.started.Load() && c.machine.Authenticated()
}

// IsAuthenticatedAsync waits until bootstrap settles, then answers.
func (c *Client) IsAuthenticatedAsync(ctx context.Context) (bool, error) {
	if !c.started.Load() {
		return false, ErrClientNotStarted
	}
	if err := c.machine.WaitReady(ctx); err != nil {
		return false, err
	}
	return c.machine.Authenticated(), nil
}

// GetSession returns the current session projection, or nil when signed out.
func (c *Client) GetSession() *Session {
	if !c.started.Load() {
		return nil
	}
	st, tokens, user := c.machine.Snapshot()
	if st.Phase != machine.PhaseSignedIn || tokens.Access == "" || tokens.Refresh == "" || user == nil {
		return nil
	}
	return c.session(tokens, user)
}

// GetUser describes the getuser operation and its observable behavior.
//
// GetUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) GetUser() *User {
	if session := c.GetSession(); session != nil {
		return session.User
	}
	return nil
}

// GetAccessToken returns the live access token, "" when signed out.
func (c *Client) GetAccessToken() string {
	if !c.started.Load() {
		return ""
	}
	return c.machine.AccessToken()
}

// LastError returns the retained error for a flow name ("registration",
// "authentication", "refresh", ...), nil if that flow never failed. Retained
// errors are only superseded, never auto-cleared; distinguish attempts by the
// result of the call, not by polling this.
func (c *Client) LastError(flow string) *APIError {
	return c.machine.LastError(machine.Flow(flow))
}

// ProviderSignInURL builds the browser navigation target for OAuth provider
// sign-in.
func (c *Client) ProviderSignInURL(provider, redirectTo string) (string, error) {
	if hc, ok := c.backend.(*transport.Client); ok {
		return hc.ProviderSignInURL(provider, redirectTo), nil
	}
	if c.config.Backend.URL == "" {
		return "", ErrTransportMissing
	}
	return transport.NewClient(c.config.Backend.URL).ProviderSignInURL(provider, redirectTo), nil
}

// OnTokenChanged registers fn for every access-token change (sign-in,
// refresh, sign-out). The returned func unsubscribes; each registration owns
// exactly one listener slot and the slot is freed on unsubscribe.
func (c *Client) OnTokenChanged(fn func(session *Session)) (unsubscribe func()) {
	return c.dispatcher.subscribeToken(fn)
}

// OnAuthStateChanged registers fn for sign-in/sign-out transitions. The event
// Cause distinguishes a rejected refresh token from a deliberate sign-out.
func (c *Client) OnAuthStateChanged(fn func(event AuthStateEvent)) (unsubscribe func()) {
	return c.dispatcher.subscribeState(fn)
}

func (c *Client) session(tokens machine.Tokens, user *User) *Session {
	expiresIn := int64(0)
	if !tokens.AccessExpiresAt.IsZero() {
		expiresIn = int64(tokens.AccessExpiresAt.Sub(c.clock.Now()).Seconds())
	}
	return &Session{
		AccessToken:          tokens.Access,
		AccessTokenExpiresIn: expiresIn,
		RefreshToken:         tokens.Refresh,
		User:                 user,
	}
}

func (c *Client) sessionFromOutcome(out machine.Outcome) *Session {
	if out.Tokens == nil {
		return nil
	}
	return c.session(*out.Tokens, out.User)
}

// onChange is the machine's notification hook. It runs inside the
// run-to-completion step, so it only counts and enqueues; listener fan-out
// happens on the dispatcher goroutine.
func (c *Client) onChange(change machine.Change) {
	switch change.Cause {
	case machine.CauseSignUp:
		c.metrics.Inc(MetricSignUpSuccess)
	case machine.CauseSignIn:
		c.metrics.Inc(MetricSignInSuccess)
	case machine.CauseRefresh:
		c.metrics.Inc(MetricRefreshSuccess)
	case machine.CauseSignOut:
		c.metrics.Inc(MetricSignOut)
	case machine.CauseRefreshRejected:
		c.metrics.Inc(MetricRefreshRejected)
	case machine.CauseImport:
		c.metrics.Inc(MetricSessionImported)
	}

	var session *Session
	state := StateSignedOut
	if change.SignedIn {
		state = StateSignedIn
		_, tokens, user := c.machine.Snapshot()
		session = c.session(tokens, user)
	}

	c.dispatcher.emit(dispatched{
		tokenChanged: change.TokenChanged,
		stateChanged: change.StateChanged,
		event: AuthStateEvent{
			State:   state,
			Cause:   ChangeCause(change.Cause),
			Session: session,
			At:      c.clock.Now(),
		},
	})
}
