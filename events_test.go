package sessionkit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuthStateEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuthStateEvent) {
	<-s.gate
}

func testEvent(state AuthState, cause ChangeCause) AuthStateEvent {
	return AuthStateEvent{State: state, Cause: cause, At: testNow}
}

func TestDispatcherDeliversToSinkAndListeners(t *testing.T) {
	sink := &countingSink{}
	d := newEventDispatcher(EventsConfig{BufferSize: 8, DropIfFull: true}, sink)
	defer d.Close()

	var tokenCalls, stateCalls atomic.Int64
	d.subscribeToken(func(*Session) { tokenCalls.Add(1) })
	d.subscribeState(func(AuthStateEvent) { stateCalls.Add(1) })

	d.emit(dispatched{tokenChanged: true, stateChanged: true, event: testEvent(StateSignedIn, CauseSignIn)})
	d.emit(dispatched{tokenChanged: true, stateChanged: false, event: testEvent(StateSignedIn, CauseRefresh)})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count.Load() == 2 && tokenCalls.Load() == 2 && stateCalls.Load() == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sink=%d token=%d state=%d, want 2/2/1", sink.count.Load(), tokenCalls.Load(), stateCalls.Load())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newEventDispatcher(EventsConfig{BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the goroutine, second fills the buffer, the rest
	// must drop instead of blocking.
	for i := 0; i < 5; i++ {
		d.emit(dispatched{stateChanged: true, event: testEvent(StateSignedOut, CauseSignOut)})
	}
	if dropped := d.Dropped(); dropped == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	sink := &countingSink{}
	d := newEventDispatcher(EventsConfig{BufferSize: 16, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.emit(dispatched{stateChanged: true, event: testEvent(StateSignedOut, CauseSignOut)})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("sink received %d events after Close, want 10", got)
	}

	// Post-close emits are silently discarded.
	d.emit(dispatched{stateChanged: true, event: testEvent(StateSignedOut, CauseSignOut)})
	if got := sink.count.Load(); got != 10 {
		t.Fatalf("sink received %d events, want 10", got)
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(4)
	event := testEvent(StateSignedIn, CauseSignIn)
	sink.Emit(context.Background(), event)

	select {
	case got := <-sink.Events():
		if got.Cause != CauseSignIn {
			t.Fatalf("event %+v", got)
		}
	default:
		t.Fatal("no event buffered")
	}
}

func TestJSONWriterSinkRedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuthStateEvent{
		State: StateSignedIn,
		Cause: CauseSignIn,
		At:    testNow,
		Session: &Session{
			AccessToken:  "secret-access",
			RefreshToken: "secret-refresh",
			User:         &User{ID: "user-1"},
		},
	})

	line := buf.String()
	if bytes.Contains(buf.Bytes(), []byte("secret-access")) || bytes.Contains(buf.Bytes(), []byte("secret-refresh")) {
		t.Fatalf("token material leaked into the log line: %s", line)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["state"] != "SIGNED_IN" || record["cause"] != "signin" || record["user_id"] != "user-1" {
		t.Fatalf("unexpected record: %v", record)
	}
}
