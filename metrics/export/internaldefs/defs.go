package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLogoutManual, Name: "gosession_logout_manual_total", Help: "Manual logouts that ended a session."},
	{ID: goSession.MetricLogoutDemoted, Name: "gosession_logout_demoted_total", Help: "Automatic logouts that demoted a session to locked."},
	{ID: goSession.MetricSessionLockedIdle, Name: "gosession_session_locked_idle_total", Help: "Sessions locked by long inactivity."},
	{ID: goSession.MetricSessionLockedAbsence, Name: "gosession_session_locked_absence_total", Help: "Sessions locked on return after an absence."},
	{ID: goSession.MetricSessionLockedDemoted, Name: "gosession_session_locked_demoted_total", Help: "Sessions locked by demotion or token rejection."},
	{ID: goSession.MetricUnlockLocalSuccess, Name: "gosession_unlock_success_total", Help: "Successful lock-screen unlocks."},
	{ID: goSession.MetricUnlockLocalFailure, Name: "gosession_unlock_failure_total", Help: "Failed lock-screen unlocks."},
	{ID: goSession.MetricUnlockRateLimited, Name: "gosession_unlock_rate_limited_total", Help: "Unlock attempts refused by the attempt limiter."},
	{ID: goSession.MetricUnlockServerFallback, Name: "gosession_unlock_server_fallback_total", Help: "Unlocks retried against the identity server."},
	{ID: goSession.MetricProfileFetchSuccess, Name: "gosession_profile_fetch_success_total", Help: "Successful explicit profile fetches."},
	{ID: goSession.MetricProfileFetchFailure, Name: "gosession_profile_fetch_failure_total", Help: "Failed explicit profile fetches."},
	{ID: goSession.MetricProfileUpdate, Name: "gosession_profile_update_total", Help: "Profile updates."},
	{ID: goSession.MetricPasswordChangeSuccess, Name: "gosession_password_change_success_total", Help: "Successful password changes."},
	{ID: goSession.MetricPasswordChangeFailure, Name: "gosession_password_change_failure_total", Help: "Failed password changes."},
	{ID: goSession.MetricPasswordRecoveryRequest, Name: "gosession_password_recovery_request_total", Help: "Password recovery requests."},
	{ID: goSession.MetricPasswordRecoveryComplete, Name: "gosession_password_recovery_complete_total", Help: "Completed password resets."},
	{ID: goSession.MetricBackgroundSyncSuccess, Name: "gosession_background_sync_success_total", Help: "Applied background profile syncs."},
	{ID: goSession.MetricBackgroundSyncFailure, Name: "gosession_background_sync_failure_total", Help: "Failed background profile syncs."},
	{ID: goSession.MetricBackgroundSyncDiscarded, Name: "gosession_background_sync_discarded_total", Help: "Background syncs discarded because the session changed."},
	{ID: goSession.MetricSessionRestored, Name: "gosession_session_restored_total", Help: "Sessions restored from the credential cache."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Cached sessions discarded past the cache TTL."},
	{ID: goSession.MetricStorageReadFailure, Name: "gosession_storage_read_failure_total", Help: "Unreadable credential store records treated as absent."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricLoginLatency, Name: "gosession_login_latency_seconds", Help: "Login round trip latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds for use in metric names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies up to eight raw bucket counts into a fixed array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
