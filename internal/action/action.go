package action

import (
	"context"
	"errors"
	"sync"

	"github.com/sessionkit/sessionkit/transport"
)

// ErrMachineReused is an exported constant or variable used by the session engine.
var ErrMachineReused = errors.New("action machine already ran")

// ErrUnauthenticated is an exported constant or variable used by the session engine.
var ErrUnauthenticated = errors.New("user unauthenticated")

// State defines a public type used by sessionkit APIs.
//
// State instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type State uint8

const (
	// Idle is an exported constant or variable used by the session engine.
	Idle State = iota
	// Requesting is an exported constant or variable used by the session engine.
	Requesting
	// Succeeded is an exported constant or variable used by the session engine.
	Succeeded
	// Failed is an exported constant or variable used by the session engine.
	Failed
)

// Kind defines a public type used by sessionkit APIs.
//
// Kind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Kind string

const (
	// KindResetPassword is an exported constant or variable used by the session engine.
	KindResetPassword Kind = "resetPassword"
	// KindChangePassword is an exported constant or variable used by the session engine.
	KindChangePassword Kind = "changePassword"
	// KindChangeEmail is an exported constant or variable used by the session engine.
	KindChangeEmail Kind = "changeEmail"
	// KindSendVerificationEmail is an exported constant or variable used by the session engine.
	KindSendVerificationEmail Kind = "sendVerificationEmail"
)

// Result is the terminal outcome of a machine run. Local carries precondition
// failures that never reached the network; APIErr carries backend failures.
type Result struct {
	APIErr *transport.APIError
	Local  error
}

// Failed reports whether the run ended in the error state.
func (r Result) Failed() bool {
	return r.APIErr != nil || r.Local != nil
}

// Deps wires one machine run. Request performs the flow's single transport
// call; accessToken is the live token at request time ("" when the flow does
// not need one).
type Deps struct {
	// RequireAuth gates the flow on a non-empty live access token.
	RequireAuth bool

	// AccessToken reads the current access token from the live session
	// machine. Only consulted when RequireAuth is set.
	AccessToken func() string

	Request func(ctx context.Context, accessToken string) *transport.APIError
}

// Machine defines a public type used by sessionkit APIs.
//
// Machine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Machine struct {
	kind Kind
	deps Deps

	mu     sync.Mutex
	state  State
	result Result
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(kind Kind, deps Deps) *Machine {
	return &Machine{kind: kind, deps: deps}
}

// Kind describes the kind operation and its observable behavior.
//
// Kind does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) Kind() Kind {
	return m.kind
}

// State describes the state operation and its observable behavior.
//
// State does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Result returns the terminal outcome; zero until the machine settles.
func (m *Machine) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// Run drives the machine from idle to a terminal state. It accepts exactly
// one request per machine; a second Run fails with [ErrMachineReused].
func (m *Machine) Run(ctx context.Context) Result {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return Result{Local: ErrMachineReused}
	}
	m.state = Requesting
	m.mu.Unlock()

	result := m.perform(ctx)

	m.mu.Lock()
	if result.Failed() {
		m.state = Failed
	} else {
		m.state = Succeeded
	}
	m.result = result
	m.mu.Unlock()
	return result
}

func (m *Machine) perform(ctx context.Context) Result {
	var accessToken string
	if m.deps.RequireAuth {
		if m.deps.AccessToken != nil {
			accessToken = m.deps.AccessToken()
		}
		if accessToken == "" {
			return Result{Local: ErrUnauthenticated}
		}
	}
	if apiErr := m.deps.Request(ctx, accessToken); apiErr != nil {
		return Result{APIErr: apiErr}
	}
	return Result{}
}
