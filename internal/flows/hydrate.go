package flows

import "time"

// HydrateOutcome is the startup state chosen from persisted data.
type HydrateOutcome uint8

const (
	// HydrateAnonymous means there is nothing usable to restore.
	HydrateAnonymous HydrateOutcome = iota
	// HydrateExpired means a credential exists but is past its TTL and must
	// be deleted before continuing as anonymous.
	HydrateExpired
	HydrateAuthenticated
	// HydrateLocked means the session was locked when the process went away.
	HydrateLocked
)

func (o HydrateOutcome) String() string {
	switch o {
	case HydrateAnonymous:
		return "anonymous"
	case HydrateExpired:
		return "expired"
	case HydrateAuthenticated:
		return "authenticated"
	case HydrateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// HydrateInput is what startup found in the credential store.
type HydrateInput struct {
	Now          time.Time
	CacheTTL     time.Duration
	ManualLogout bool
	HasToken     bool
	HasProfile   bool
	CachedAt     time.Time
	Locked       bool
}

// RunHydrate decides the startup state. The manual logout flag wins over
// everything; a half-written credential (token without profile or the
// reverse) is unusable.
func RunHydrate(in HydrateInput) HydrateOutcome {
	if in.ManualLogout {
		return HydrateAnonymous
	}
	if !in.HasToken && !in.HasProfile {
		return HydrateAnonymous
	}
	if !in.HasToken || !in.HasProfile || !CacheFresh(in.Now, in.CachedAt, in.CacheTTL) {
		return HydrateExpired
	}
	if in.Locked {
		return HydrateLocked
	}
	return HydrateAuthenticated
}
