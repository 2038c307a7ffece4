package goSession

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/activity"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/store"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config   Config
	backend  store.Backend
	identity IdentityClient
	logger   *slog.Logger
	audit    AuditSink
	now      func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the durable key/value medium. Required.
func (b *Builder) WithBackend(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

// WithIdentityClient sets the identity server transport. Without one the
// engine still hydrates, locks and unlocks locally; network operations
// return ErrIdentityUnavailable.
func (b *Builder) WithIdentityClient(client IdentityClient) *Builder {
	b.identity = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.audit = sink
	return b
}

// WithClock replaces time.Now for cache ages, exit markers and the unlock
// limiter. Timers still run on wall time.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.backend == nil {
		return nil, errors.New("credential store backend required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}

	monitor, err := activity.New(cfg.Activity, activity.WithClock(now))
	if err != nil {
		return nil, err
	}

	creds := store.NewCredentials(b.backend, cfg.Session.Namespace, logger)

	engine := &Engine{
		config:   cfg,
		logger:   logger.With("component", "session_engine"),
		creds:    creds,
		identity: b.identity,
		hasher:   hasher,
		monitor:  monitor,
		now:      now,
		limiter: limiters.NewUnlockLimiter(creds, limiters.UnlockConfig{
			Enabled:     cfg.Unlock.MaxAttempts > 0,
			MaxAttempts: cfg.Unlock.MaxAttempts,
			Cooldown:    cfg.Unlock.Cooldown,
		}, now),
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.audit),
		subs: make(map[uint64]*subscriber),
	}
	engine.state.online = cfg.Session.StartOnline
	engine.bgCtx, engine.bgCancel = context.WithCancel(context.Background())

	b.built = true

	return engine, nil
}
