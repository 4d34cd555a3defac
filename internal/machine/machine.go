package machine

import (
	"context"
	"sync"
	"time"

	"github.com/sessionkit/sessionkit/storage"
	"github.com/sessionkit/sessionkit/transport"
)

const (
	defaultSafetyMargin = 30 * time.Second
	defaultRetryDelay   = 10 * time.Second
	storageTimeout      = 5 * time.Second
	mailboxDepth        = 64
)

// Deps wires a [Machine] to its collaborators. Backend is required; everything
// else has a usable zero-config default.
type Deps struct {
	Backend transport.Backend
	Storage storage.Adapter
	Clock   Clock

	// Notify is invoked synchronously inside the run-to-completion step for
	// every observable change. It must not block; the caller is expected to
	// hand the change to a buffered dispatcher.
	Notify func(Change)

	// Warn receives printf-style messages for conditions that are logged and
	// survived (storage write failures, best-effort sign-out failures).
	Warn func(format string, args ...any)

	SafetyMargin    time.Duration
	RefreshInterval time.Duration
	RetryDelay      time.Duration
	AutoRefresh     bool
	AutoLogin       bool
}

type envelope struct {
	event Event
	reply chan Outcome
}

// Machine is the session state machine executor: a single mailbox consumer
// applying [Transition] with run-to-completion semantics.
//
// Machine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Machine struct {
	deps Deps

	mailbox chan envelope
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	callCtx    context.Context
	callCancel context.CancelFunc

	mu    sync.RWMutex
	state State
	actx  Context

	ready     chan struct{}
	readyOnce sync.Once

	// Executor-owned; touched only by the run goroutine.
	timer    Timer
	parked   chan Outcome
	deferred []envelope
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(deps Deps) *Machine {
	if deps.Storage == nil {
		deps.Storage = storage.NewMemory()
	}
	if deps.Clock == nil {
		deps.Clock = NewRealClock()
	}
	if deps.SafetyMargin <= 0 {
		deps.SafetyMargin = defaultSafetyMargin
	}
	if deps.RetryDelay <= 0 {
		deps.RetryDelay = defaultRetryDelay
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	callCtx, callCancel := context.WithCancel(context.Background())
	return &Machine{
		deps:       deps,
		mailbox:    make(chan envelope, mailboxDepth),
		stop:       make(chan struct{}),
		callCtx:    callCtx,
		callCancel: callCancel,
		state:      State{Phase: PhaseStarting},
		actx:       Context{Errors: map[Flow]*transport.APIError{}},
		ready:      make(chan struct{}),
	}
}

// Start launches the executor and the storage bootstrap. It must be called
// exactly once.
func (m *Machine) Start() {
	m.wg.Add(1)
	go m.run()
	go m.bootstrap()
}

// Stop shuts the executor down. Outstanding and deferred callers settle with
// [ErrStopped]; in-flight transport calls are cancelled.
func (m *Machine) Stop() {
	m.stopped.Do(func() {
		close(m.stop)
		m.callCancel()
	})
	m.wg.Wait()
}

// WaitReady blocks until bootstrap settles into the first stable state, so
// callers can distinguish "not signed in" from "not loaded yet".
func (m *Machine) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-m.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether bootstrap has settled, without blocking.
func (m *Machine) Ready() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

// Snapshot returns copies of the current state and auth context values.
func (m *Machine) Snapshot() (State, Tokens, *transport.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.actx.Tokens, m.actx.User
}

// Authenticated describes the authenticated operation and its observable behavior.
//
// Authenticated does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Phase == PhaseSignedIn && m.actx.Authenticated()
}

// AccessToken returns the live access token, or "" when signed out. Action
// flows read it at request time so a token refreshed mid-flow is honored.
func (m *Machine) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Phase != PhaseSignedIn {
		return ""
	}
	return m.actx.Tokens.Access
}

// LastError returns the retained error for a flow, nil when the flow never
// failed. Errors persist until superseded by the flow's next attempt.
func (m *Machine) LastError(flow Flow) *transport.APIError {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actx.Errors[flow]
}

// SignUpEmailPassword describes the signupemailpassword operation and its observable behavior.
//
// SignUpEmailPassword may return an error when input validation, dependency calls, or security checks fail.
// SignUpEmailPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) SignUpEmailPassword(ctx context.Context, email, password string, opts transport.SignUpOptions) (Outcome, error) {
	return m.request(ctx, Event{Kind: EventSignUpEmailPassword, Email: email, Password: password, SignUpOpts: opts})
}

// SignInEmailPassword describes the signinemailpassword operation and its observable behavior.
//
// SignInEmailPassword may return an error when input validation, dependency calls, or security checks fail.
// SignInEmailPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) SignInEmailPassword(ctx context.Context, email, password string) (Outcome, error) {
	return m.request(ctx, Event{Kind: EventSignInEmailPassword, Email: email, Password: password})
}

// SignInPasswordlessEmail describes the signinpasswordlessemail operation and its observable behavior.
//
// SignInPasswordlessEmail may return an error when input validation, dependency calls, or security checks fail.
// SignInPasswordlessEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) SignInPasswordlessEmail(ctx context.Context, email string, opts transport.ActionOptions) (Outcome, error) {
	return m.request(ctx, Event{Kind: EventSignInPasswordlessEmail, Email: email, ActionOpts: opts})
}

// SignInMFATOTP describes the signinmfatotp operation and its observable behavior.
//
// SignInMFATOTP may return an error when input validation, dependency calls, or security checks fail.
// SignInMFATOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) SignInMFATOTP(ctx context.Context, ticket, otp string) (Outcome, error) {
	return m.request(ctx, Event{Kind: EventSignInMFATOTP, Ticket: ticket, OTP: otp})
}

// SignOut describes the signout operation and its observable behavior.
//
// SignOut may return an error when input validation, dependency calls, or security checks fail.
// SignOut does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) SignOut(ctx context.Context, all bool) (Outcome, error) {
	return m.request(ctx, Event{Kind: EventSignOut, All: all})
}

// Refresh forces an immediate token refresh.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) Refresh(ctx context.Context) (Outcome, error) {
	return m.request(ctx, Event{Kind: EventRefresh})
}

func (m *Machine) request(ctx context.Context, ev Event) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reply := make(chan Outcome, 1)

	select {
	case m.mailbox <- envelope{event: ev, reply: reply}:
	case <-m.stop:
		return Outcome{}, ErrStopped
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	select {
	case out := <-reply:
		return out, nil
	case <-m.stop:
		return Outcome{}, ErrStopped
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// post delivers an internal event (transport result, timer fire, bootstrap)
// into the mailbox.
func (m *Machine) post(ev Event) {
	select {
	case m.mailbox <- envelope{event: ev}:
	case <-m.stop:
	}
}

func (m *Machine) bootstrap() {
	ctx, cancel := context.WithTimeout(m.callCtx, storageTimeout)
	defer cancel()

	stored, err := m.deps.Storage.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		m.deps.Warn("sessionkit: storage read failed on bootstrap: %v", err)
		stored = ""
	}
	m.post(Event{Kind: EventBootstrapToken, HasStored: stored != "", Tokens: Tokens{Refresh: stored}})
}

func (m *Machine) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stop:
			m.drain()
			return
		case env := <-m.mailbox:
			m.dispatch(env)
		}
	}
}

func (m *Machine) dispatch(env envelope) {
	if m.shouldDefer(env) {
		m.deferred = append(m.deferred, env)
		return
	}
	m.step(env)
	m.flushDeferred()
}

// inFlight reports whether a transport call is pending, which forces FIFO
// deferral of newly arriving user requests.
func (m *Machine) inFlight() bool {
	switch {
	case m.state.Phase == PhaseStarting:
		return true
	case m.state.Phase == PhaseAuthenticating:
		return true
	case m.state.Phase == PhaseSignedIn && m.state.Refreshing:
		return true
	}
	return false
}

func (m *Machine) shouldDefer(env envelope) bool {
	if !m.inFlight() {
		return false
	}
	switch env.event.Kind {
	case EventSignUpEmailPassword, EventSignInEmailPassword,
		EventSignInPasswordlessEmail, EventSignInMFATOTP, EventRefresh:
		// Sign-out is deliberately absent: it supersedes in-flight work.
		return true
	}
	return false
}

func (m *Machine) flushDeferred() {
	for len(m.deferred) > 0 && !m.inFlight() {
		env := m.deferred[0]
		m.deferred = m.deferred[1:]
		m.step(env)
	}
}

// step runs one full transition: compute, commit, apply effects. Nothing else
// is dequeued until it returns.
func (m *Machine) step(env envelope) {
	params := Params{
		Now:             m.deps.Clock.Now(),
		SafetyMargin:    m.deps.SafetyMargin,
		RefreshInterval: m.deps.RefreshInterval,
		RetryDelay:      m.deps.RetryDelay,
		AutoRefresh:     m.deps.AutoRefresh,
		AutoLogin:       m.deps.AutoLogin,
	}

	next, actx, effects := Transition(m.state, m.actx, env.event, params)

	m.mu.Lock()
	m.state = next
	m.actx = actx
	m.mu.Unlock()

	for _, eff := range effects {
		m.apply(env, eff)
	}
}

func (m *Machine) apply(env envelope, eff Effect) {
	switch eff.Kind {
	case EffectCallSignUp, EffectCallSignInPassword, EffectCallSignInPasswordless,
		EffectCallSignInMFATOTP, EffectCallRefresh, EffectCallSignOut:
		m.launch(eff)

	case EffectPersist:
		m.persist(eff.Refresh)

	case EffectClearStorage:
		m.clearStorage()

	case EffectArmTimer:
		m.armTimer(eff.Delay, eff.Epoch)

	case EffectCancelTimer:
		m.cancelTimer()

	case EffectNotify:
		if m.deps.Notify != nil {
			m.deps.Notify(eff.Change)
		}

	case EffectPark:
		m.parked = env.reply

	case EffectSettleCaller:
		settle(env.reply, eff.Outcome)

	case EffectSettlePending:
		settle(m.parked, eff.Outcome)
		m.parked = nil

	case EffectSignalReady:
		m.readyOnce.Do(func() { close(m.ready) })
	}
}

func (m *Machine) persist(refreshToken string) {
	ctx, cancel := context.WithTimeout(m.callCtx, storageTimeout)
	defer cancel()

	if err := m.deps.Storage.Set(ctx, storage.KeyRefreshToken, refreshToken); err != nil {
		m.deps.Warn("sessionkit: storage write failed: %v", err)
	}
	m.mu.RLock()
	user := m.actx.User
	m.mu.RUnlock()
	if user != nil {
		if err := m.deps.Storage.Set(ctx, storage.KeyUserID, user.ID); err != nil {
			m.deps.Warn("sessionkit: storage write failed: %v", err)
		}
	}
}

func (m *Machine) clearStorage() {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := m.deps.Storage.Remove(ctx, storage.KeyRefreshToken); err != nil {
		m.deps.Warn("sessionkit: storage remove failed: %v", err)
	}
	if err := m.deps.Storage.Remove(ctx, storage.KeyUserID); err != nil {
		m.deps.Warn("sessionkit: storage remove failed: %v", err)
	}
}

func (m *Machine) armTimer(delay time.Duration, epoch uint64) {
	m.cancelTimer()
	m.timer = m.deps.Clock.AfterFunc(delay, func() {
		m.post(Event{Kind: EventRefreshTick, Epoch: epoch})
	})
}

func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) drain() {
	m.cancelTimer()
	settle(m.parked, Outcome{Local: ErrStopped})
	m.parked = nil
	for _, env := range m.deferred {
		settle(env.reply, Outcome{Local: ErrStopped})
	}
	m.deferred = nil
}

func settle(reply chan Outcome, out Outcome) {
	if reply == nil {
		return
	}
	select {
	case reply <- out:
	default:
	}
}
