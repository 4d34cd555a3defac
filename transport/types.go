package transport

import (
	"context"
	"fmt"
	"time"
)

// APIError defines a public type used by sessionkit APIs.
//
// APIError instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type APIError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Error describes the error operation and its observable behavior.
//
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// User is the backend's representation of an account as seen by the client.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	PhoneNumber   string         `json:"phoneNumber,omitempty"`
	DisplayName   string         `json:"displayName,omitempty"`
	AvatarURL     string         `json:"avatarUrl,omitempty"`
	Locale        string         `json:"locale,omitempty"`
	DefaultRole   string         `json:"defaultRole,omitempty"`
	Roles         []string       `json:"roles,omitempty"`
	EmailVerified bool           `json:"emailVerified"`
	PhoneVerified bool           `json:"phoneNumberVerified"`
	IsAnonymous   bool           `json:"isAnonymous"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt,omitzero"`
}

// SessionPayload is the token-bearing body returned by sign-up, sign-in, MFA
// confirmation, and refresh. AccessTokenExpiresIn is in seconds from receipt.
type SessionPayload struct {
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresIn int64  `json:"accessTokenExpiresIn"`
	RefreshToken         string `json:"refreshToken"`
	User                 *User  `json:"user,omitempty"`
}

// MFAChallenge carries the opaque ticket the backend mints when a password
// sign-in requires a second factor before tokens are issued.
type MFAChallenge struct {
	Ticket string `json:"ticket"`
}

// SignUpOptions defines a public type used by sessionkit APIs.
//
// SignUpOptions instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignUpOptions struct {
	DisplayName  string         `json:"displayName,omitempty"`
	Locale       string         `json:"locale,omitempty"`
	DefaultRole  string         `json:"defaultRole,omitempty"`
	AllowedRoles []string       `json:"allowedRoles,omitempty"`
	RedirectTo   string         `json:"redirectTo,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ActionOptions carries the optional parameters of the out-of-band flows
// (password reset, email change, verification resend, passwordless sign-in).
type ActionOptions struct {
	RedirectTo string `json:"redirectTo,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// Backend is the set of network operations the session engine consumes. Every
// method returns its result alongside a nullable *APIError; implementations
// must map connectivity failures into an APIError rather than a Go error so the
// state machine only ever sees data.
type Backend interface {
	SignUpEmailPassword(ctx context.Context, email, password string, opts SignUpOptions) (*SessionPayload, *APIError)
	SignInEmailPassword(ctx context.Context, email, password string) (*SessionPayload, *MFAChallenge, *APIError)
	SignInPasswordlessEmail(ctx context.Context, email string, opts ActionOptions) *APIError
	SignInMFATOTP(ctx context.Context, ticket, otp string) (*SessionPayload, *APIError)
	RefreshToken(ctx context.Context, refreshToken string) (*SessionPayload, *APIError)
	SignOut(ctx context.Context, refreshToken string, all bool) *APIError
	ResetPassword(ctx context.Context, email string, opts ActionOptions) *APIError
	ChangePassword(ctx context.Context, accessToken, newPassword string) *APIError
	ChangeEmail(ctx context.Context, accessToken, newEmail string, opts ActionOptions) *APIError
	SendVerificationEmail(ctx context.Context, email string, opts ActionOptions) *APIError
}
