package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/limiters"
	internalmetrics "github.com/authgate/authgate/internal/metrics"
	"github.com/authgate/authgate/internal/stores"
	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/token"
)

// Attempt-tracker kinds. Each verification path has its own counter.
const (
	attemptKindPassword = "password"
	attemptKindEmail    = "email"
	attemptKindTotp     = "totp"
	attemptKindBackup   = "backup"
)

// Engine is the session-security core. Construct through [Builder.Build];
// all methods are safe for concurrent use afterwards.
type Engine struct {
	config     Config
	tokens     *token.Store
	challenges *stores.ChallengeStore
	devices    *stores.TrustedDeviceStore
	attempts   *limiters.AttemptTracker
	audit      *audit.Dispatcher
	metrics    *internalmetrics.Metrics
	totp       *totpManager
	jwtManager *jwt.Manager
	directory  Directory
	notifier   Notifier
	now        Clock
}

// Close flushes and stops the audit dispatcher. The Engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Login verifies the password, decides whether a second factor is required,
// and either issues a token pair or opens an MFA challenge.
//
// Unknown identifiers and wrong passwords both return
// [ErrInvalidCredentials]. A valid trusted-device token attached via
// [WithTrustedDevice] skips the challenge.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*AuthOutcome, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.directory.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", 0, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("directory lookup: %w", err)
	}

	if err := e.checkAttempts(ctx, user.UserID, attemptKindPassword); err != nil {
		if errors.Is(err, ErrTooManyAttempts) {
			e.metricInc(MetricLoginLockedOut)
			e.emitAudit(ctx, auditEventLoginLockedOut, false, user.UserID, "", 0, err, nil)
		}
		return nil, err
	}

	ok, err := e.directory.VerifyPassword(ctx, user.UserID, password)
	if err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("password verification: %w", err)
	}
	if !ok {
		return nil, e.recordLoginFailure(ctx, user.UserID)
	}

	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", 0, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	if err := e.attempts.Reset(ctx, user.UserID, attemptKindPassword); err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	if e.config.Challenge.RequireForAllUsers || user.MFAEnabled {
		if e.tryTrustedDeviceBypass(ctx, user) {
			return e.completeLogin(ctx, user, "")
		}

		challenge, err := e.issueChallenge(ctx, user)
		if err != nil {
			return nil, err
		}
		return &AuthOutcome{
			MFARequired:            true,
			Challenge:              challenge,
			RequiresPasswordChange: user.RequiresPasswordChange,
		}, nil
	}

	return e.completeLogin(ctx, user, "")
}

// completeLogin issues the token pair and emits the success audit trail.
// deviceToken is non-empty when a trusted device was registered during
// challenge verification.
func (e *Engine) completeLogin(ctx context.Context, user UserRecord, deviceToken string) (*AuthOutcome, error) {
	outcome, err := e.issueInitialPair(ctx, user)
	if err != nil {
		return nil, err
	}
	outcome.TrustedDeviceToken = deviceToken

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, outcome.FamilyID, 0, nil, nil)
	return outcome, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, userID string) error {
	exceeded, err := e.attempts.RecordFailure(ctx, userID, attemptKindPassword)
	if err != nil {
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	if exceeded {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, userID, "", 0, ErrTooManyAttempts, nil)
		return ErrTooManyAttempts
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", 0, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) checkAttempts(ctx context.Context, userID, kind string) error {
	err := e.attempts.Check(ctx, userID, kind)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrLockedOut):
		return ErrTooManyAttempts
	default:
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
}

// issueInitialPair starts a new token family: first refresh token, matching
// access token. The session clock starts here and never restarts.
func (e *Engine) issueInitialPair(ctx context.Context, user UserRecord) (*AuthOutcome, error) {
	familyID := uuid.NewString()

	tokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, err
	}

	now := e.now()
	record := &token.Record{
		TokenID:          tokenID.String(),
		FamilyID:         familyID,
		UserID:           user.UserID,
		SecretHash:       internal.HashSecret(secret),
		IssuedAt:         now,
		ExpiresAt:        now.Add(e.config.Rotation.RefreshTTL),
		SessionStartedAt: now,
		CreatedByIP:      clientIPFromContext(ctx),
	}
	if err := e.tokens.Create(ctx, record); err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrRotationUnavailable, err)
	}

	access, err := e.jwtManager.CreateAccess(user.UserID, familyID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &AuthOutcome{
		AccessToken:            access,
		RefreshToken:           internal.EncodeToken(tokenID, secret),
		FamilyID:               familyID,
		SessionStartedAt:       now,
		RequiresPasswordChange: user.RequiresPasswordChange,
	}, nil
}

// RefreshSession exchanges a live refresh token for a new pair. Presenting a
// token that was already rotated revokes its whole family and returns
// [ErrReuseDetected]; a family past the absolute session ceiling returns
// [ErrSessionExpired].
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*AuthOutcome, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", 0, ErrInvalidOrExpiredToken, nil)
		return nil, ErrInvalidOrExpiredToken
	}

	nextID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	nextSecret, err := internal.NewSecret()
	if err != nil {
		return nil, err
	}

	result, err := e.tokens.Rotate(
		ctx,
		tokenID.String(),
		internal.HashSecret(secret),
		nextID.String(),
		internal.HashSecret(nextSecret),
		clientIPFromContext(ctx),
	)
	if err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrRotationUnavailable, err)
	}

	switch result.Status {
	case token.RotateRotated:
		access, err := e.jwtManager.CreateAccess(result.UserID, result.FamilyID)
		if err != nil {
			return nil, fmt.Errorf("sign access token: %w", err)
		}

		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, result.UserID, result.FamilyID, 0, nil, nil)
		return &AuthOutcome{
			AccessToken:      access,
			RefreshToken:     internal.EncodeToken(nextID, nextSecret),
			FamilyID:         result.FamilyID,
			SessionStartedAt: result.SessionStartedAt,
		}, nil

	case token.RotateReused:
		revoked, revokeErr := e.tokens.RevokeFamily(ctx, result.FamilyID)
		if revokeErr != nil {
			e.metricInc(MetricBackendError)
			return nil, fmt.Errorf("%w: %v", ErrRotationUnavailable, revokeErr)
		}
		e.metricInc(MetricReuseDetected)
		e.metricInc(MetricFamilyRevoked)
		e.emitAudit(ctx, auditEventReuseDetected, false, result.UserID, result.FamilyID, 0, ErrReuseDetected, nil)
		e.emitAudit(ctx, auditEventFamilyRevoked, true, result.UserID, result.FamilyID, 0, nil, map[string]string{
			"revoked_tokens": fmt.Sprintf("%d", revoked),
			"reason":         "reuse_detected",
		})
		return nil, ErrReuseDetected

	case token.RotateCeiling:
		// The family is done; revoke so later replays read as reuse of a
		// dead family rather than restarting the ceiling debate.
		if _, revokeErr := e.tokens.RevokeFamily(ctx, result.FamilyID); revokeErr != nil {
			e.metricInc(MetricBackendError)
			return nil, fmt.Errorf("%w: %v", ErrRotationUnavailable, revokeErr)
		}
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, auditEventSessionExpired, false, result.UserID, result.FamilyID, 0, ErrSessionExpired, nil)
		return nil, ErrSessionExpired

	default:
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", 0, ErrInvalidOrExpiredToken, nil)
		return nil, ErrInvalidOrExpiredToken
	}
}

// RevokeSession revokes every token in a family. Logout for one session.
// Idempotent.
func (e *Engine) RevokeSession(ctx context.Context, familyID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	revoked, err := e.tokens.RevokeFamily(ctx, familyID)
	if err != nil {
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrRotationUnavailable, err)
	}

	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventFamilyRevoked, true, "", familyID, 0, nil, map[string]string{
		"revoked_tokens": fmt.Sprintf("%d", revoked),
		"reason":         "logout",
	})
	return nil
}

// RevokeAllForUser revokes every token family issued to the user. Logout
// everywhere; used after password resets or account compromise.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	families, err := e.tokens.FamiliesForUser(ctx, userID)
	if err != nil {
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrRotationUnavailable, err)
	}

	for _, familyID := range families {
		if _, err := e.tokens.RevokeFamily(ctx, familyID); err != nil {
			e.metricInc(MetricBackendError)
			return fmt.Errorf("%w: %v", ErrRotationUnavailable, err)
		}
		e.metricInc(MetricFamilyRevoked)
		e.emitAudit(ctx, auditEventFamilyRevoked, true, userID, familyID, 0, nil, map[string]string{
			"reason": "revoke_all",
		})
	}
	return nil
}
