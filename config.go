package sessionkit

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sessionkit/sessionkit/storage"
)

// Config defines a public type used by sessionkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Backend BackendConfig
	Token   TokenConfig
	Session SessionConfig
	Storage StorageConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig defines a public type used by sessionkit APIs.
//
// BackendConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackendConfig struct {
	// URL is the identity backend base URL. Required unless a custom
	// transport is supplied through [Builder.WithTransport].
	URL       string
	Timeout   time.Duration
	UserAgent string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by sessionkit APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// AutoRefresh arms the one-shot refresh timer after every successful
	// token acquisition.
	AutoRefresh bool

	// RefreshSafetyMargin is subtracted from the access token lifetime when
	// scheduling its refresh, to absorb request latency. It should comfortably
	// exceed one round trip to the backend.
	RefreshSafetyMargin time.Duration

	// RefreshInterval, when positive, replaces the computed delay with a
	// fixed one.
	RefreshInterval time.Duration

	// RefreshRetryDelay is the re-arm delay after a transient (non-rejection)
	// refresh failure.
	RefreshRetryDelay time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by sessionkit APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	// AutoLogin imports a persisted refresh token at start and exchanges it
	// for a session before the client reports ready.
	AutoLogin bool

	// Start runs the machine immediately on Build. When false, the caller
	// starts it later with [Client.Start].
	Start bool

	// DeviceID is sent with every request for backend-side device tracking.
	// Generated when empty.
	DeviceID string
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig defines a public type used by sessionkit APIs.
//
// StorageConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StorageConfig struct {
	// Adapter persists the refresh token across restarts. Defaults to the
	// in-memory adapter (no persistence).
	Adapter storage.Adapter
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by sessionkit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig tunes the listener dispatcher behind OnTokenChanged and
// OnAuthStateChanged.
type EventsConfig struct {
	BufferSize int

	// DropIfFull drops events rather than blocking the state machine when
	// listeners fall behind. Leave it on unless losing a notification is
	// worse than stalling every session operation.
	DropIfFull bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Timeout:   30 * time.Second,
			UserAgent: "sessionkit-go",
		},
		Token: TokenConfig{
			AutoRefresh:         true,
			RefreshSafetyMargin: 30 * time.Second,
			RefreshRetryDelay:   10 * time.Second,
		},
		Session: SessionConfig{
			AutoLogin: true,
			Start:     true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Events: EventsConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Backend.URL != "" {
		parsed, err := url.Parse(cfg.Backend.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("backend URL %q is not an absolute URL", cfg.Backend.URL)
		}
	}
	if cfg.Token.RefreshSafetyMargin < 0 {
		return errors.New("refresh safety margin must not be negative")
	}
	if cfg.Token.RefreshInterval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	if cfg.Token.RefreshRetryDelay < 0 {
		return errors.New("refresh retry delay must not be negative")
	}
	if cfg.Events.BufferSize < 0 {
		return errors.New("events buffer size must not be negative")
	}
	return nil
}
