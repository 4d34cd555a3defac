package sessionkit

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sessionkit/sessionkit/internal/machine"
	"github.com/sessionkit/sessionkit/storage"
	"github.com/sessionkit/sessionkit/transport"
)

// Builder defines a public type used by sessionkit APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config    Config
	backend   transport.Backend
	adapter   storage.Adapter
	clock     machine.Clock
	eventSink EventSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(backendURL string) *Builder {
	b := &Builder{config: defaultConfig()}
	b.config.Backend.URL = backendURL
	return b
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithTransport replaces the HTTP transport with a custom [transport.Backend]
// implementation. Intended for tests and for callers with exotic wire needs.
func (b *Builder) WithTransport(backend transport.Backend) *Builder {
	b.backend = backend
	return b
}

// WithStorage describes the withstorage operation and its observable behavior.
//
// WithStorage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithStorage(adapter storage.Adapter) *Builder {
	b.adapter = adapter
	return b
}

// WithRedisStorage persists the refresh token in Redis under the given key
// prefix. ttl bounds how long a persisted value may outlive its last write.
func (b *Builder) WithRedisStorage(client redis.UniversalClient, prefix string, ttl time.Duration) *Builder {
	b.adapter = storage.NewRedis(client, prefix, ttl)
	return b
}

// WithFileStorage persists the refresh token in a JSON file at path.
func (b *Builder) WithFileStorage(path string) *Builder {
	b.adapter = storage.NewFile(path)
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// WithClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithClock(clock machine.Clock) *Builder {
	b.clock = clock
	return b
}

// WithEventSink mirrors every auth-state event into sink, in addition to any
// registered listeners.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithAutoRefresh describes the withautorefresh operation and its observable behavior.
//
// WithAutoRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAutoRefresh(enabled bool) *Builder {
	b.config.Token.AutoRefresh = enabled
	return b
}

// WithAutoLogin describes the withautologin operation and its observable behavior.
//
// WithAutoLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAutoLogin(enabled bool) *Builder {
	b.config.Session.AutoLogin = enabled
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	cfg := b.config
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Session.DeviceID == "" {
		cfg.Session.DeviceID = uuid.NewString()
	}

	backend := b.backend
	if backend == nil {
		if cfg.Backend.URL == "" {
			return nil, ErrTransportMissing
		}
		httpOpts := []transport.Option{
			transport.WithDeviceID(cfg.Session.DeviceID),
			transport.WithUserAgent(cfg.Backend.UserAgent),
		}
		if cfg.Backend.Timeout > 0 {
			httpOpts = append(httpOpts, transport.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}))
		}
		backend = transport.NewClient(cfg.Backend.URL, httpOpts...)
	}

	adapter := b.adapter
	if adapter == nil {
		adapter = cfg.Storage.Adapter
	}
	if adapter == nil {
		adapter = storage.NewMemory()
	}

	clock := b.clock
	if clock == nil {
		clock = machine.NewRealClock()
	}

	c := &Client{
		config:     cfg,
		backend:    backend,
		clock:      clock,
		metrics:    NewMetrics(cfg.Metrics),
		dispatcher: newEventDispatcher(cfg.Events, b.eventSink),
	}

	c.machine = machine.New(machine.Deps{
		Backend:         backend,
		Storage:         adapter,
		Clock:           clock,
		Notify:          c.onChange,
		Warn:            log.Printf,
		SafetyMargin:    cfg.Token.RefreshSafetyMargin,
		RefreshInterval: cfg.Token.RefreshInterval,
		RetryDelay:      cfg.Token.RefreshRetryDelay,
		AutoRefresh:     cfg.Token.AutoRefresh,
		AutoLogin:       cfg.Session.AutoLogin,
	})

	if cfg.Session.Start {
		c.Start()
	}
	return c, nil
}
