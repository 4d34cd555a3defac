// Package storage provides the pluggable persistence contract for session
// credentials and its bundled implementations.
//
// [Adapter] is a minimal get/set/remove key-value contract. The engine writes
// the refresh token (and only the refresh token — never the access token, never
// a password) through it inside the same transition that mutates in-memory
// state, so persisted and in-memory credentials can never disagree.
//
// Bundled adapters: [Memory] (process-local, default), [Noop] (discards
// everything — for callers that manage persistence themselves), [File] (JSON
// file for CLI and desktop processes), and [Redis] (redis/go-redis backed, for
// headless clients that share a credential across replicas).
//
// # What this package must NOT do
//
//   - Interpret stored values. Keys and values are opaque strings here.
//   - Swallow the distinction between "absent" and "failed": Get returns
//     ("", nil) for a missing key and a non-nil error only for real failures.
package storage
