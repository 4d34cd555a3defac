// Package jwt provides client-side inspection of access tokens.
//
// The engine never verifies signatures — verification is the backend's job, and
// the client holds no keys. What the client does need is the token's expiry (to
// schedule refreshes when the backend omits an explicit expiresIn) and the
// embedded claims (subject, roles) for display purposes. [Parse] decodes both
// without validating anything.
//
// # What this package must NOT do
//
//   - Verify signatures or claim validity. An expired or forged token parses fine.
//   - Be used as an authorization decision input. Claims here are advisory.
package jwt
