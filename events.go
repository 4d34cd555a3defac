package sessionkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// EventSink receives every auth state event in addition to any registered
// listeners. Sinks run on the dispatcher goroutine; a slow sink delays
// listeners but never the state machine.
type EventSink interface {
	Emit(ctx context.Context, event AuthStateEvent)
}

// NoOpSink defines a public type used by sessionkit APIs.
type NoOpSink struct{}

// Emit describes the emit operation and its observable behavior.
func (NoOpSink) Emit(context.Context, AuthStateEvent) {}

// ChannelSink defines a public type used by sessionkit APIs.
//
// ChannelSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChannelSink struct {
	events chan AuthStateEvent
}

// NewChannelSink describes the newchannelsink operation and its observable behavior.
//
// NewChannelSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuthStateEvent, buffer),
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *ChannelSink) Emit(ctx context.Context, event AuthStateEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events describes the events operation and its observable behavior.
func (s *ChannelSink) Events() <-chan AuthStateEvent {
	return s.events
}

// JSONWriterSink writes one JSON line per event. Token material is redacted:
// only the state, cause, user id, and timestamp are serialized.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink describes the newjsonwritersink operation and its observable behavior.
//
// NewJSONWriterSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

type jsonEventRecord struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
	Cause     string    `json:"cause"`
	UserID    string    `json:"user_id,omitempty"`
}

// Emit describes the emit operation and its observable behavior.
func (s *JSONWriterSink) Emit(_ context.Context, event AuthStateEvent) {
	if s == nil || s.writer == nil {
		return
	}
	record := jsonEventRecord{
		Timestamp: event.At,
		State:     string(event.State),
		Cause:     string(event.Cause),
	}
	if event.Session != nil && event.Session.User != nil {
		record.UserID = event.Session.User.ID
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// dispatched is one fan-out unit: which listener classes fire and the event
// they all receive.
type dispatched struct {
	tokenChanged bool
	stateChanged bool
	event        AuthStateEvent
}

// eventDispatcher decouples listener fan-out from the state machine's
// run-to-completion step. The machine enqueues; a single goroutine invokes
// listeners and the sink in enqueue order.
type eventDispatcher struct {
	cfg  EventsConfig
	sink EventSink

	ch        chan dispatched
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	mu             sync.Mutex
	nextID         uint64
	tokenListeners map[uint64]func(*Session)
	stateListeners map[uint64]func(AuthStateEvent)
}

func newEventDispatcher(cfg EventsConfig, sink EventSink) *eventDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &eventDispatcher{
		cfg:            cfg,
		sink:           sink,
		ch:             make(chan dispatched, cfg.BufferSize),
		done:           make(chan struct{}),
		tokenListeners: make(map[uint64]func(*Session)),
		stateListeners: make(map[uint64]func(AuthStateEvent)),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.ch:
			d.deliver(item)
		case <-d.done:
			for {
				select {
				case item := <-d.ch:
					d.deliver(item)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) deliver(item dispatched) {
	d.sink.Emit(context.Background(), item.event)

	d.mu.Lock()
	var tokenFns []func(*Session)
	var stateFns []func(AuthStateEvent)
	if item.tokenChanged {
		tokenFns = make([]func(*Session), 0, len(d.tokenListeners))
		for _, fn := range d.tokenListeners {
			tokenFns = append(tokenFns, fn)
		}
	}
	if item.stateChanged {
		stateFns = make([]func(AuthStateEvent), 0, len(d.stateListeners))
		for _, fn := range d.stateListeners {
			stateFns = append(stateFns, fn)
		}
	}
	d.mu.Unlock()

	for _, fn := range tokenFns {
		fn(item.event.Session)
	}
	for _, fn := range stateFns {
		fn(item.event)
	}
}

func (d *eventDispatcher) emit(item dispatched) {
	if d == nil || d.closed.Load() {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- item:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- item:
	case <-d.done:
	}
}

// subscribeToken registers fn and returns its unsubscribe func. Each
// registration owns exactly one slot; unsubscribing frees it and is
// idempotent.
func (d *eventDispatcher) subscribeToken(fn func(*Session)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.tokenListeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.tokenListeners, id)
		d.mu.Unlock()
	}
}

func (d *eventDispatcher) subscribeState(fn func(AuthStateEvent)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.stateListeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.stateListeners, id)
		d.mu.Unlock()
	}
}

// Close drains queued events, then stops the dispatcher goroutine.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded under DropIfFull.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
