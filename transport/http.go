package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// StatusNetworkError is the synthetic status recorded on an APIError when the
// request never produced an HTTP response (DNS failure, refused connection,
// context cancellation). Real backend statuses are always < 600.
const StatusNetworkError = 0

// Client defines a public type used by sessionkit APIs.
//
// Client instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Client struct {
	baseURL    string
	httpClient *http.Client
	deviceID   string
	userAgent  string
}

// Option configures a [Client] during construction.
type Option func(*Client)

// WithHTTPClient describes the withhttpclient operation and its observable behavior.
//
// WithHTTPClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDeviceID describes the withdeviceid operation and its observable behavior.
//
// WithDeviceID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithDeviceID(id string) Option {
	return func(c *Client) {
		c.deviceID = id
	}
}

// WithUserAgent describes the withuseragent operation and its observable behavior.
//
// WithUserAgent does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient describes the newclient operation and its observable behavior.
//
// NewClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		deviceID:   uuid.NewString(),
		userAgent:  "sessionkit-go",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL describes the baseurl operation and its observable behavior.
//
// BaseURL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ProviderSignInURL builds the browser navigation target for OAuth provider
// sign-in. This is not a Backend call: the authorization-code exchange happens
// server-side after the redirect.
func (c *Client) ProviderSignInURL(provider string, redirectTo string) string {
	u := c.baseURL + "/v1/auth/signin/provider/" + url.PathEscape(provider)
	if redirectTo != "" {
		u += "?redirectTo=" + url.QueryEscape(redirectTo)
	}
	return u
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Options  *SignUpOptions `json:"options,omitempty"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordlessRequest struct {
	Email   string         `json:"email"`
	Options *ActionOptions `json:"options,omitempty"`
}

type mfaTOTPRequest struct {
	Ticket string `json:"ticket"`
	OTP    string `json:"otp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type signOutRequest struct {
	RefreshToken string `json:"refreshToken"`
	All          bool   `json:"all,omitempty"`
}

type resetPasswordRequest struct {
	Email   string         `json:"email"`
	Options *ActionOptions `json:"options,omitempty"`
}

type changePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type changeEmailRequest struct {
	NewEmail string         `json:"newEmail"`
	Options  *ActionOptions `json:"options,omitempty"`
}

type sendVerificationEmailRequest struct {
	Email   string         `json:"email"`
	Options *ActionOptions `json:"options,omitempty"`
}

type sessionEnvelope struct {
	Session *SessionPayload `json:"session"`
	MFA     *MFAChallenge   `json:"mfa"`
}

// SignUpEmailPassword describes the signupemailpassword operation and its observable behavior.
//
// SignUpEmailPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SignUpEmailPassword(ctx context.Context, email, password string, opts SignUpOptions) (*SessionPayload, *APIError) {
	var out sessionEnvelope
	body := signUpRequest{Email: email, Password: password}
	if !optsAllZero(opts) {
		body.Options = &opts
	}
	if apiErr := c.post(ctx, "/v1/auth/signup/email-password", "", body, &out); apiErr != nil {
		return nil, apiErr
	}
	return out.Session, nil
}

// SignInEmailPassword describes the signinemailpassword operation and its observable behavior.
//
// SignInEmailPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SignInEmailPassword(ctx context.Context, email, password string) (*SessionPayload, *MFAChallenge, *APIError) {
	var out sessionEnvelope
	if apiErr := c.post(ctx, "/v1/auth/signin/email-password", "", signInRequest{Email: email, Password: password}, &out); apiErr != nil {
		return nil, nil, apiErr
	}
	return out.Session, out.MFA, nil
}

// SignInPasswordlessEmail describes the signinpasswordlessemail operation and its observable behavior.
//
// SignInPasswordlessEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SignInPasswordlessEmail(ctx context.Context, email string, opts ActionOptions) *APIError {
	body := passwordlessRequest{Email: email}
	if opts != (ActionOptions{}) {
		body.Options = &opts
	}
	return c.post(ctx, "/v1/auth/signin/passwordless/email", "", body, nil)
}

// SignInMFATOTP describes the signinmfatotp operation and its observable behavior.
//
// SignInMFATOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SignInMFATOTP(ctx context.Context, ticket, otp string) (*SessionPayload, *APIError) {
	var out sessionEnvelope
	if apiErr := c.post(ctx, "/v1/auth/signin/mfa/totp", "", mfaTOTPRequest{Ticket: ticket, OTP: otp}, &out); apiErr != nil {
		return nil, apiErr
	}
	return out.Session, nil
}

// RefreshToken describes the refreshtoken operation and its observable behavior.
//
// RefreshToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*SessionPayload, *APIError) {
	var out SessionPayload
	if apiErr := c.post(ctx, "/v1/auth/token", "", refreshRequest{RefreshToken: refreshToken}, &out); apiErr != nil {
		return nil, apiErr
	}
	return &out, nil
}

// SignOut describes the signout operation and its observable behavior.
//
// SignOut does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SignOut(ctx context.Context, refreshToken string, all bool) *APIError {
	return c.post(ctx, "/v1/auth/signout", "", signOutRequest{RefreshToken: refreshToken, All: all}, nil)
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) ResetPassword(ctx context.Context, email string, opts ActionOptions) *APIError {
	body := resetPasswordRequest{Email: email}
	if opts != (ActionOptions{}) {
		body.Options = &opts
	}
	return c.post(ctx, "/v1/auth/user/password/reset", "", body, nil)
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) ChangePassword(ctx context.Context, accessToken, newPassword string) *APIError {
	return c.post(ctx, "/v1/auth/user/password", accessToken, changePasswordRequest{NewPassword: newPassword}, nil)
}

// ChangeEmail describes the changeemail operation and its observable behavior.
//
// ChangeEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) ChangeEmail(ctx context.Context, accessToken, newEmail string, opts ActionOptions) *APIError {
	body := changeEmailRequest{NewEmail: newEmail}
	if opts != (ActionOptions{}) {
		body.Options = &opts
	}
	return c.post(ctx, "/v1/auth/user/email/change", accessToken, body, nil)
}

// SendVerificationEmail describes the sendverificationemail operation and its observable behavior.
//
// SendVerificationEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SendVerificationEmail(ctx context.Context, email string, opts ActionOptions) *APIError {
	body := sendVerificationEmailRequest{Email: email}
	if opts != (ActionOptions{}) {
		body.Options = &opts
	}
	return c.post(ctx, "/v1/auth/user/email/send-verification-email", "", body, nil)
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) *APIError {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &APIError{Message: "encode request: " + err.Error(), Status: StatusNetworkError}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &APIError{Message: "build request: " + err.Error(), Status: StatusNetworkError}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestIDFromContext(ctx))
	req.Header.Set("X-Device-ID", c.deviceID)
	req.Header.Set("User-Agent", c.userAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if locale := localeFromContext(ctx); locale != "" {
		req.Header.Set("Accept-Language", locale)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: err.Error(), Status: StatusNetworkError}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Message: "read response: " + err.Error(), Status: StatusNetworkError}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Message: "decode response: " + err.Error(), Status: resp.StatusCode}
	}
	return nil
}

// decodeAPIError extracts a backend error body, falling back to the HTTP
// status text for non-JSON or empty bodies.
func decodeAPIError(status int, raw []byte) *APIError {
	var apiErr APIError
	if len(raw) > 0 && json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		if apiErr.Status == 0 {
			apiErr.Status = status
		}
		return &apiErr
	}
	return &APIError{Message: http.StatusText(status), Status: status}
}

func optsAllZero(opts SignUpOptions) bool {
	return opts.DisplayName == "" && opts.Locale == "" && opts.DefaultRole == "" &&
		len(opts.AllowedRoles) == 0 && opts.RedirectTo == "" && len(opts.Metadata) == 0
}
