package transport

import (
	"context"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}
type localeContextKey struct{}

// WithRequestID attaches a caller-chosen request identifier to ctx. The HTTP
// client sends it as X-Request-ID so a flow can be correlated across the
// backend's logs. When absent, a fresh UUID is generated per request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// WithLocale attaches a BCP 47 locale to ctx. The HTTP client sends it as
// Accept-Language so backend-rendered emails (verification, password reset)
// match the user's language.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeContextKey{}, locale)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return uuid.NewString()
	}

	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	if requestID == "" {
		return uuid.NewString()
	}
	return requestID
}

func localeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	locale, _ := ctx.Value(localeContextKey{}).(string)
	return locale
}
