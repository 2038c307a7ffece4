package goSession

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/activity"
	"github.com/MrEthical07/goSession/password"
	"github.com/go-playground/validator/v10"
)

// Config is the full engine configuration. Build it from DefaultConfig and
// override sections; the Builder clones it so later mutation by the caller
// has no effect on a built engine.
type Config struct {
	Session  SessionConfig   `mapstructure:"session"`
	Activity activity.Config `mapstructure:"activity"`
	Sync     SyncConfig      `mapstructure:"sync"`
	Identity IdentityConfig  `mapstructure:"identity"`
	Password password.Config `mapstructure:"password"`
	Unlock   UnlockConfig    `mapstructure:"unlock"`
	Audit    AuditConfig     `mapstructure:"audit"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// SessionConfig controls credential caching and the return policy.
type SessionConfig struct {
	// Namespace prefixes every persisted key.
	Namespace string `mapstructure:"namespace" validate:"required,max=64"`
	// CacheTTL bounds how long a cached credential may authorize access.
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	// LockTimeout is the absence after which a return locks the session.
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`
	// TokenExpiryLeeway is applied when a JWT bearer token's exp is read.
	TokenExpiryLeeway time.Duration `mapstructure:"token_expiry_leeway" validate:"gte=0"`
	StartOnline       bool          `mapstructure:"start_online"`
}

// SyncConfig controls the periodic background profile refresh.
type SyncConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// IdentityConfig holds the identity server address and per-operation
// timeout and attempt budgets. Attempts counts the first try.
type IdentityConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"omitempty,url"`
	LoginTimeout     time.Duration `mapstructure:"login_timeout" validate:"gt=0"`
	LoginAttempts    int           `mapstructure:"login_attempts" validate:"gte=1,lte=10"`
	ProfileTimeout   time.Duration `mapstructure:"profile_timeout" validate:"gt=0"`
	ProfileAttempts  int           `mapstructure:"profile_attempts" validate:"gte=1,lte=10"`
	LogoutTimeout    time.Duration `mapstructure:"logout_timeout" validate:"gt=0"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" validate:"gt=0"`
	RecoveryAttempts int           `mapstructure:"recovery_attempts" validate:"gte=1,lte=10"`
	RetryWaitMin     time.Duration `mapstructure:"retry_wait_min" validate:"gte=0"`
	RetryWaitMax     time.Duration `mapstructure:"retry_wait_max" validate:"gte=0"`
}

// UnlockConfig bounds local unlock attempts.
type UnlockConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0"`
	Cooldown    time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	// ServerFallback allows a failed local unlock to retry against the
	// identity server when online.
	ServerFallback bool `mapstructure:"server_fallback"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" validate:"gte=0"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Namespace:         "goSession",
			CacheTTL:          72 * time.Hour,
			LockTimeout:       5 * time.Minute,
			TokenExpiryLeeway: 30 * time.Second,
			StartOnline:       true,
		},
		Activity: activity.DefaultConfig(),
		Sync: SyncConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
		},
		Identity: IdentityConfig{
			LoginTimeout:     10 * time.Second,
			LoginAttempts:    2,
			ProfileTimeout:   8 * time.Second,
			ProfileAttempts:  2,
			LogoutTimeout:    3 * time.Second,
			RecoveryTimeout:  10 * time.Second,
			RecoveryAttempts: 2,
			RetryWaitMin:     250 * time.Millisecond,
			RetryWaitMax:     2 * time.Second,
		},
		Password: password.DefaultConfig(),
		Unlock: UnlockConfig{
			MaxAttempts:    5,
			Cooldown:       5 * time.Minute,
			ServerFallback: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// Config holds only value fields.
	return cfg
}

// Validate checks struct tags first and then the rules that span fields.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Activity.LongIdleTimeout < c.Activity.IdleTimeout {
		return errors.New("activity: long_idle_timeout must be >= idle_timeout")
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return errors.New("sync: interval must be > 0 when enabled")
	}
	if c.Identity.RetryWaitMax < c.Identity.RetryWaitMin {
		return errors.New("identity: retry_wait_max must be >= retry_wait_min")
	}
	if c.Unlock.MaxAttempts > 0 && c.Unlock.Cooldown <= 0 {
		return errors.New("unlock: cooldown must be > 0 when max_attempts is set")
	}
	if strings.ContainsAny(c.Session.Namespace, ": \t\n") {
		return errors.New("session: namespace must not contain ':' or whitespace")
	}
	return nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
