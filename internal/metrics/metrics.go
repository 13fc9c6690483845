// Package metrics provides the in-process counter set behind the Engine's
// observability surface. Counters are plain atomics: incrementing one is a
// single atomic add, and a snapshot is a consistent-enough copy for export.
package metrics

import "sync/atomic"

// ID names a counter. The set is closed; exporters iterate [AllIDs].
type ID string

const (
	LoginSuccess          ID = "login_success_total"
	LoginFailure          ID = "login_failure_total"
	LoginLockedOut        ID = "login_locked_out_total"
	ChallengeIssued       ID = "mfa_challenge_issued_total"
	ChallengeSuccess      ID = "mfa_challenge_success_total"
	ChallengeFailure      ID = "mfa_challenge_failure_total"
	ChallengeReplay       ID = "mfa_challenge_replay_total"
	ChallengeLockedOut    ID = "mfa_locked_out_total"
	RefreshSuccess        ID = "refresh_success_total"
	RefreshInvalid        ID = "refresh_invalid_total"
	ReuseDetected         ID = "refresh_reuse_detected_total"
	SessionExpired        ID = "session_expired_total"
	FamilyRevoked         ID = "family_revoked_total"
	TrustedDeviceUsed     ID = "trusted_device_used_total"
	TrustedDeviceRejected ID = "trusted_device_rejected_total"
	BackendError          ID = "backend_error_total"
)

// AllIDs lists every counter in a stable order for exporters.
var AllIDs = []ID{
	LoginSuccess,
	LoginFailure,
	LoginLockedOut,
	ChallengeIssued,
	ChallengeSuccess,
	ChallengeFailure,
	ChallengeReplay,
	ChallengeLockedOut,
	RefreshSuccess,
	RefreshInvalid,
	ReuseDetected,
	SessionExpired,
	FamilyRevoked,
	TrustedDeviceUsed,
	TrustedDeviceRejected,
	BackendError,
}

// Metrics is the counter set. A nil *Metrics is valid and drops increments,
// mirroring the audit dispatcher contract.
type Metrics struct {
	counters map[ID]*atomic.Uint64
}

func New() *Metrics {
	m := &Metrics{counters: make(map[ID]*atomic.Uint64, len(AllIDs))}
	for _, id := range AllIDs {
		m.counters[id] = new(atomic.Uint64)
	}
	return m
}

// Inc increments the named counter. Unknown IDs are ignored.
func (m *Metrics) Inc(id ID) {
	if m == nil {
		return
	}
	if c, ok := m.counters[id]; ok {
		c.Add(1)
	}
}

// Snapshot copies the current counter values. Each value is read atomically;
// the snapshot as a whole is not a single point in time, which is fine for
// monotonic counters.
func (m *Metrics) Snapshot() map[ID]uint64 {
	out := make(map[ID]uint64, len(AllIDs))
	if m == nil {
		for _, id := range AllIDs {
			out[id] = 0
		}
		return out
	}
	for id, c := range m.counters {
		out[id] = c.Load()
	}
	return out
}
