package goSession

import "time"

// LintSeverity ranks advisory configuration warnings.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is one advisory finding. Code is stable across releases.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that are valid but likely unintended. It never
// fails; call Validate for hard errors.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Session.CacheTTL > 7*24*time.Hour {
		add("cache_ttl_long", LintWarn, "cached credentials stay usable for more than a week")
	}
	if c.Session.LockTimeout > time.Hour {
		add("lock_timeout_long", LintWarn, "returning after an hour away does not lock the session")
	}
	if c.Activity.LongIdleTimeout > c.Session.CacheTTL {
		add("long_idle_beyond_ttl", LintInfo, "long-idle lock can never fire before the cache expires")
	}
	if c.Unlock.MaxAttempts == 0 {
		add("unlock_unlimited", LintHigh, "local unlock attempts are not rate limited")
	}
	if c.Password.Memory < 19*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory below 19 MiB weakens stored verifiers")
	}
	if !c.Sync.Enabled {
		add("sync_disabled", LintInfo, "profile and permission changes are only picked up on login")
	}
	if c.Identity.BaseURL != "" && !hasScheme(c.Identity.BaseURL, "https://") {
		add("identity_plaintext", LintHigh, "identity server is reached over plain HTTP")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not emitted")
	}
	if c.Session.TokenExpiryLeeway > 5*time.Minute {
		add("leeway_large", LintWarn, "token expiry leeway exceeds five minutes")
	}
	return out
}

func hasScheme(u, scheme string) bool {
	return len(u) >= len(scheme) && u[:len(scheme)] == scheme
}
