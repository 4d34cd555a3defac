// Package machine implements the session lifecycle state machine.
//
// The machine is a single logical actor: one mailbox, one consumer goroutine,
// run-to-completion per event. State is an explicit tagged union ([State]) and
// [Transition] is a pure function from (state, context, event) to (state,
// context, effects) — all I/O (backend calls, storage writes, timer arming)
// happens in the executor when it applies the returned effects, never inside
// Transition itself. That split keeps every transition table-testable without
// goroutines or stubs.
//
// Auth context (tokens, user, per-flow errors) is owned exclusively by this
// package. Everything outside reads snapshots or sends events.
//
// # What this package must NOT do
//
//   - Expose mutable state. Snapshot returns copies.
//   - Block inside a transition. Backend calls run in a spawned goroutine and
//     re-enter the mailbox as result events.
//   - Apply a transport result the current state no longer expects (stale
//     refresh after sign-out, timer fire after cancellation).
package machine
