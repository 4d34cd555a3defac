// Package action implements the ephemeral one-shot flow machines: reset
// password, change password, change email, and verification-email resend.
//
// Each machine lives for exactly one call: constructed, driven from idle
// through requesting to a terminal success or error, then discarded. They are
// side channels — no outcome here ever mutates session state. The flows that
// need authentication read the live access token through an injected func at
// request time, so a token refreshed while the caller was preparing the
// request is still honored.
//
// # What this package must NOT do
//
//   - Be reused. A machine that already ran fails fast on the second Run.
//   - Hold a token snapshot taken at construction.
//   - Import the session machine. The two only meet in the root facade.
package action
