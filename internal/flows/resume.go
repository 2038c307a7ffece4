package flows

import "time"

// ResumeOutcome is the decision taken when the host regains visibility,
// focus or network.
type ResumeOutcome uint8

const (
	// ResumeNoop leaves the current state alone.
	ResumeNoop ResumeOutcome = iota
	// ResumeRestore restores an authenticated session without a lock-screen.
	ResumeRestore
	// ResumeLock demotes to the lock-screen.
	ResumeLock
)

func (o ResumeOutcome) String() string {
	switch o {
	case ResumeNoop:
		return "noop"
	case ResumeRestore:
		return "restore"
	case ResumeLock:
		return "lock"
	default:
		return "unknown"
	}
}

// ResumeInput carries the exit markers and the facts the policy needs.
type ResumeInput struct {
	Now              time.Time
	LockTimeout      time.Duration
	HasMarkers       bool
	ExitedAt         time.Time
	WasAuthenticated bool
	CacheFresh       bool
	ManualLogout     bool
}

// Absence returns how long the host was away. A negative duration means the
// clock moved backwards.
func (in ResumeInput) Absence() time.Duration {
	return in.Now.Sub(in.ExitedAt)
}

// RunResume applies the return-from-background policy:
//
//   - away for less than LockTimeout with a fresh credential and no manual
//     logout: restore;
//   - away for LockTimeout or longer while authenticated: lock;
//   - otherwise nothing.
//
// A clock that went backwards is treated as an unbounded absence.
func RunResume(in ResumeInput) ResumeOutcome {
	if !in.HasMarkers {
		return ResumeNoop
	}

	absence := in.Absence()
	short := absence >= 0 && absence < in.LockTimeout

	if short {
		if in.CacheFresh && !in.ManualLogout {
			return ResumeRestore
		}
		return ResumeNoop
	}
	if in.WasAuthenticated {
		return ResumeLock
	}
	return ResumeNoop
}
