// Package internaldefs holds the shared counter definitions the metric
// exporters render. It exists so the Prometheus and OpenTelemetry exporters
// agree on names and help text without importing each other.
package internaldefs

import (
	authgate "github.com/authgate/authgate"
)

// CounterDef maps an engine counter to its exported name and help text.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricLoginLockedOut, Name: "authgate_login_locked_out_total", Help: "Logins rejected by lockout."},
	{ID: authgate.MetricChallengeIssued, Name: "authgate_mfa_challenge_issued_total", Help: "MFA challenges issued."},
	{ID: authgate.MetricChallengeSuccess, Name: "authgate_mfa_challenge_success_total", Help: "Successful MFA verifications."},
	{ID: authgate.MetricChallengeFailure, Name: "authgate_mfa_challenge_failure_total", Help: "Failed MFA verifications."},
	{ID: authgate.MetricChallengeReplay, Name: "authgate_mfa_challenge_replay_total", Help: "Replayed MFA challenge verifications."},
	{ID: authgate.MetricChallengeLockedOut, Name: "authgate_mfa_locked_out_total", Help: "MFA verifications rejected by lockout."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authgate.MetricRefreshInvalid, Name: "authgate_refresh_invalid_total", Help: "Refresh attempts with invalid or expired tokens."},
	{ID: authgate.MetricReuseDetected, Name: "authgate_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authgate.MetricSessionExpired, Name: "authgate_session_expired_total", Help: "Refresh attempts past the absolute session ceiling."},
	{ID: authgate.MetricFamilyRevoked, Name: "authgate_family_revoked_total", Help: "Token family revocations."},
	{ID: authgate.MetricTrustedDeviceUsed, Name: "authgate_trusted_device_used_total", Help: "MFA bypasses granted to trusted devices."},
	{ID: authgate.MetricTrustedDeviceRejected, Name: "authgate_trusted_device_rejected_total", Help: "Trusted device tokens rejected."},
	{ID: authgate.MetricBackendError, Name: "authgate_backend_error_total", Help: "Storage backend failures."},
}
