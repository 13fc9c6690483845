package authgate

import (
	"context"
	"errors"
	"io"

	"github.com/authgate/authgate/internal/audit"
)

// AuditEvent is the structured record emitted for every security-relevant
// operation.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events. Supply one through
// [Builder.WithAuditSink]; sinks must be safe for concurrent use.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel for in-process consumers.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink = audit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLockedOut        = "login_locked_out"
	auditEventChallengeIssued       = "mfa_challenge_issued"
	auditEventChallengeSuccess      = "mfa_challenge_success"
	auditEventChallengeFailure      = "mfa_challenge_failure"
	auditEventChallengeReplay       = "mfa_challenge_replay"
	auditEventChallengeLockedOut    = "mfa_locked_out"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventReuseDetected         = "refresh_reuse_detected"
	auditEventSessionExpired        = "session_expired"
	auditEventFamilyRevoked         = "family_revoked"
	auditEventTrustedDeviceCreated  = "trusted_device_created"
	auditEventTrustedDeviceUsed     = "trusted_device_used"
	auditEventTrustedDeviceRejected = "trusted_device_rejected"
	auditEventTrustedDeviceRevoked  = "trusted_device_revoked"
)

type auditErrCode string

const (
	auditErrInvalidCredentials auditErrCode = "invalid_credentials"
	auditErrAccountInactive    auditErrCode = "account_inactive"
	auditErrInvalidToken       auditErrCode = "invalid_token"
	auditErrReuse              auditErrCode = "refresh_reuse"
	auditErrSessionExpired     auditErrCode = "session_expired"
	auditErrLockedOut          auditErrCode = "locked_out"
	auditErrInvalidCredential  auditErrCode = "invalid_mfa_credential"
	auditErrUnavailable        auditErrCode = "backend_unavailable"
	auditErrInternal           auditErrCode = "internal_error"
)

func auditErrorCode(err error) auditErrCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrReuseDetected):
		return auditErrReuse
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrLockedOut
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrChallengeUnavailable), errors.Is(err, ErrRotationUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	familyID string,
	method Method,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if method != 0 {
		event.Method = method.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
