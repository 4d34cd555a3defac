package storage

import (
	"context"
	"sync"
)

// KeyRefreshToken is the storage key under which the engine persists the
// current refresh token. The access token is deliberately never persisted; it
// is short-lived and reconstructible through a refresh.
const KeyRefreshToken = "refreshToken"

// KeyUserID is the storage key under which the engine persists the user ID
// hint alongside the refresh token.
const KeyUserID = "userId"

// Adapter defines a public type used by sessionkit APIs.
//
// Adapter instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Adapter interface {
	// Get returns the value for key, or "" with a nil error when the key is
	// absent. A non-nil error means the backing store itself failed.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Memory is a process-local Adapter. It is the default when no adapter is
// configured; credentials do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory describes the newmemory operation and its observable behavior.
//
// NewMemory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get describes the get operation and its observable behavior.
//
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

// Set describes the set operation and its observable behavior.
//
// Set does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove describes the remove operation and its observable behavior.
//
// Remove does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Noop is an Adapter that persists nothing and reports every key as absent.
type Noop struct{}

// Get describes the get operation and its observable behavior.
//
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (Noop) Get(context.Context, string) (string, error) { return "", nil }

// Set describes the set operation and its observable behavior.
//
// Set does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (Noop) Set(context.Context, string, string) error { return nil }

// Remove describes the remove operation and its observable behavior.
//
// Remove does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (Noop) Remove(context.Context, string) error { return nil }
