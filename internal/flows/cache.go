package flows

import "time"

// CacheFresh reports whether a credential cached at cachedAt may still
// authorize access at now. A zero or future timestamp is never fresh.
func CacheFresh(now, cachedAt time.Time, ttl time.Duration) bool {
	if cachedAt.IsZero() || cachedAt.After(now) || ttl <= 0 {
		return false
	}
	return now.Sub(cachedAt) < ttl
}
