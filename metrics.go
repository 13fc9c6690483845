package authgate

import internalmetrics "github.com/authgate/authgate/internal/metrics"

// MetricID names one of the Engine's monotonic counters.
type MetricID = internalmetrics.ID

// Metric IDs exposed for exporters and tests.
const (
	MetricLoginSuccess          = internalmetrics.LoginSuccess
	MetricLoginFailure          = internalmetrics.LoginFailure
	MetricLoginLockedOut        = internalmetrics.LoginLockedOut
	MetricChallengeIssued       = internalmetrics.ChallengeIssued
	MetricChallengeSuccess      = internalmetrics.ChallengeSuccess
	MetricChallengeFailure      = internalmetrics.ChallengeFailure
	MetricChallengeReplay       = internalmetrics.ChallengeReplay
	MetricChallengeLockedOut    = internalmetrics.ChallengeLockedOut
	MetricRefreshSuccess        = internalmetrics.RefreshSuccess
	MetricRefreshInvalid        = internalmetrics.RefreshInvalid
	MetricReuseDetected         = internalmetrics.ReuseDetected
	MetricSessionExpired        = internalmetrics.SessionExpired
	MetricFamilyRevoked         = internalmetrics.FamilyRevoked
	MetricTrustedDeviceUsed     = internalmetrics.TrustedDeviceUsed
	MetricTrustedDeviceRejected = internalmetrics.TrustedDeviceRejected
	MetricBackendError          = internalmetrics.BackendError
)

// AllMetricIDs lists every counter in a stable order.
func AllMetricIDs() []MetricID {
	return append([]MetricID(nil), internalmetrics.AllIDs...)
}

// MetricsSnapshot copies the current counter values. Counters are monotonic;
// exporters should report them as such.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return (*internalmetrics.Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}
