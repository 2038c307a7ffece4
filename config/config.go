// Package config loads a goSession host configuration from a YAML, JSON or
// TOML file and GOSESSION_* environment variables.
//
// Every key has a default, so an absent file is not an error. Environment
// variables use the upper-cased key path with dots replaced by
// underscores: GOSESSION_SESSION_CACHE_TTL overrides session.cache_ttl.
package config

import (
	"errors"
	"fmt"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/gate"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "GOSESSION"

// Store backend kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Settings is everything a host needs: the engine configuration plus the
// store, identity and logging choices made outside the engine.
type Settings struct {
	goSession.Config `mapstructure:",squash"`

	Store  StoreConfig `mapstructure:"store"`
	Log    LogConfig   `mapstructure:"log"`
	Routes gate.Routes `mapstructure:"routes"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Kind string `mapstructure:"kind"`
	// Path is the directory for the file backend and the database file for
	// the sqlite backend.
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads path (optional) and the environment into Settings and
// validates the engine part.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gosession")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the engine configuration and the host sections.
func (s *Settings) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	switch s.Store.Kind {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if s.Store.Path == "" {
			return fmt.Errorf("store: path required for %s backend", s.Store.Kind)
		}
	case StoreRedis:
		if s.Store.Redis.Addr == "" {
			return errors.New("store: redis.addr required for redis backend")
		}
	default:
		return fmt.Errorf("store: unknown kind %q", s.Store.Kind)
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", s.Log.Format)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := goSession.DefaultConfig()

	v.SetDefault("session.namespace", d.Session.Namespace)
	v.SetDefault("session.cache_ttl", d.Session.CacheTTL)
	v.SetDefault("session.lock_timeout", d.Session.LockTimeout)
	v.SetDefault("session.token_expiry_leeway", d.Session.TokenExpiryLeeway)
	v.SetDefault("session.start_online", d.Session.StartOnline)

	v.SetDefault("activity.idle_timeout", d.Activity.IdleTimeout)
	v.SetDefault("activity.long_idle_timeout", d.Activity.LongIdleTimeout)
	v.SetDefault("activity.debounce", d.Activity.Debounce)

	v.SetDefault("sync.enabled", d.Sync.Enabled)
	v.SetDefault("sync.interval", d.Sync.Interval)

	v.SetDefault("identity.base_url", d.Identity.BaseURL)
	v.SetDefault("identity.login_timeout", d.Identity.LoginTimeout)
	v.SetDefault("identity.login_attempts", d.Identity.LoginAttempts)
	v.SetDefault("identity.profile_timeout", d.Identity.ProfileTimeout)
	v.SetDefault("identity.profile_attempts", d.Identity.ProfileAttempts)
	v.SetDefault("identity.logout_timeout", d.Identity.LogoutTimeout)
	v.SetDefault("identity.recovery_timeout", d.Identity.RecoveryTimeout)
	v.SetDefault("identity.recovery_attempts", d.Identity.RecoveryAttempts)
	v.SetDefault("identity.retry_wait_min", d.Identity.RetryWaitMin)
	v.SetDefault("identity.retry_wait_max", d.Identity.RetryWaitMax)

	v.SetDefault("password.memory_kb", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.salt_length", d.Password.SaltLength)
	v.SetDefault("password.key_length", d.Password.KeyLength)
	v.SetDefault("password.max_password_bytes", d.Password.MaxPasswordBytes)

	v.SetDefault("unlock.max_attempts", d.Unlock.MaxAttempts)
	v.SetDefault("unlock.cooldown", d.Unlock.Cooldown)
	v.SetDefault("unlock.server_fallback", d.Unlock.ServerFallback)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("store.kind", StoreFile)
	v.SetDefault("store.path", ".gosession")
	v.SetDefault("store.redis.addr", "")
	v.SetDefault("store.redis.username", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	r := gate.DefaultRoutes()
	v.SetDefault("routes.login", r.Login)
	v.SetDefault("routes.lock", r.Lock)
	v.SetDefault("routes.home", r.Home)
	v.SetDefault("routes.unauthorized", r.Unauthorized)
	v.SetDefault("routes.next_param", r.NextParam)
}
