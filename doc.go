// Package sessionkit provides a client-side authentication session engine:
// it establishes, maintains, and terminates an authenticated session against a
// remote identity backend.
//
// The package is designed around a single-actor state machine: sign-up,
// sign-in (password, passwordless email, MFA), scheduled token refresh, and
// sign-out all flow through one run-to-completion event loop, so two
// concurrent calls can never race on the credential pair. [Client] methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Client], [Builder], [Config],
// and value types (Session, MetricsSnapshot, AuthStateEvent, etc.). Session
// lifecycle coordination lives under internal/ and is never exported; the
// wire contract and the storage contract live in the transport and storage
// subpackages so callers can plug their own.
//
// # What this package must NOT do
//
//   - Expose the state machine, its events, or its mailbox in the public API.
//   - Throw flow failures: backend and precondition errors are data
//     (*APIError in result structs), Go errors are reserved for programmer
//     misuse, shutdown, and context cancellation.
//   - Persist anything beyond the refresh token and the user ID hint. Access
//     tokens stay in memory; passwords are never written anywhere.
package sessionkit
