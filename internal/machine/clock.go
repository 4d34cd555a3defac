package machine

import (
	"sort"
	"sync"
	"time"
)

// Timer is a one-shot armed callback that can be stopped before it fires.
type Timer interface {
	// Stop cancels the timer. It reports false when the callback already fired
	// or was already stopped.
	Stop() bool
}

// Clock abstracts time for the refresh scheduler so tests can drive it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// NewRealClock describes the newrealclock operation and its observable behavior.
//
// NewRealClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// FakeClock is a manually advanced Clock for tests. Timers fire synchronously
// inside Advance, in due order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

// NewFakeClock describes the newfakeclock operation and its observable behavior.
//
// NewFakeClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now describes the now operation and its observable behavior.
//
// Now does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc describes the afterfunc operation and its observable behavior.
//
// AfterFunc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every due timer in order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	deadline := c.now

	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.when.After(deadline) {
			t.fired = true
			due = append(due, t)
			continue
		}
		remaining = append(remaining, t)
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	for _, t := range due {
		t.fn()
	}
}

// Armed reports how many timers are currently armed and unfired.
func (c *FakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
