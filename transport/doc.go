// Package transport defines the wire contract between the session engine and the
// identity backend, plus the HTTP implementation of that contract.
//
// [Backend] is the full set of network operations the engine needs: sign-up, the
// sign-in variants, token refresh, sign-out, and the four out-of-band account
// actions. [Client] implements Backend over plain HTTP+JSON against a backend
// base URL. Failures are never returned as Go errors across this boundary; every
// operation yields a nullable result plus a nullable [*APIError] so callers branch
// on data, not on error types.
//
// # What this package must NOT do
//
//   - Import the root sessionkit package or any internal package (leaf only).
//   - Retry, schedule, or persist anything. One call, one request.
//   - Inspect ticket contents — tickets are opaque to the client side.
package transport
