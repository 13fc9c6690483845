package authgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/internal/stores"
)

func attemptKindForMethod(method Method) string {
	switch method {
	case MethodEmail:
		return attemptKindEmail
	case MethodTotp:
		return attemptKindTotp
	default:
		return attemptKindBackup
	}
}

// issueChallenge opens an MFA challenge for the user. The method is the
// first preference the user can actually use; backup codes are offered as an
// alternate when the user has any left.
func (e *Engine) issueChallenge(ctx context.Context, user UserRecord) (*ChallengeResult, error) {
	method, err := e.pickChallengeMethod(ctx, user)
	if err != nil {
		return nil, err
	}

	allowed := []Method{method}
	hasBackup, err := e.directory.HasBackupCodes(ctx, user.UserID)
	if err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("backup code lookup: %w", err)
	}
	if hasBackup {
		allowed = append(allowed, MethodBackupCode)
	}

	challengeID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, err
	}

	now := e.now()
	record := &stores.ChallengeRecord{
		UserID:     user.UserID,
		Method:     uint8(method),
		SecretHash: internal.HashSecret(secret),
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(e.config.Challenge.ChallengeTTL).Unix(),
	}

	var code string
	if method == MethodEmail {
		code, err = internal.NewOTP(e.config.Challenge.EmailCodeDigits)
		if err != nil {
			return nil, err
		}
		record.CodeHash = internal.HashString(code)
	}

	if err := e.challenges.Save(ctx, challengeID.String(), record, e.config.Challenge.ChallengeTTL); err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	if method == MethodEmail {
		// Delivery is best effort. The challenge stands either way; a user
		// who never got the code lets it expire and logs in again.
		go func(email, code string) {
			sendCtx := context.WithoutCancel(ctx)
			if err := e.notifier.SendMFACode(sendCtx, email, code, e.config.Challenge.ChallengeTTL); err != nil {
				log.Printf("authgate: mfa code delivery failed: %v", err)
			}
		}(user.Email, code)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, user.UserID, "", method, nil, nil)

	return &ChallengeResult{
		Token:          internal.EncodeToken(challengeID, secret),
		Method:         method,
		AllowedMethods: allowed,
		ExpiresAt:      now.Add(e.config.Challenge.ChallengeTTL),
	}, nil
}

// pickChallengeMethod walks the configured preference order and returns the
// first method the user can complete.
func (e *Engine) pickChallengeMethod(ctx context.Context, user UserRecord) (Method, error) {
	for _, method := range e.config.Challenge.MethodPreference {
		switch method {
		case MethodTotp:
			record, err := e.directory.GetTOTPSecret(ctx, user.UserID)
			if err != nil {
				e.metricInc(MetricBackendError)
				return 0, fmt.Errorf("totp lookup: %w", err)
			}
			if record != nil && record.Enabled {
				return MethodTotp, nil
			}
		case MethodEmail:
			if user.Email != "" && e.notifier != nil {
				return MethodEmail, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: no verification method available for user", ErrChallengeUnavailable)
}

// VerifyChallenge completes a pending MFA challenge. The client may verify
// with the issued method or fall back to a backup code; any other method is
// rejected. A correct credential consumes the challenge exactly once; a
// wrong credential counts against the per-method attempt budget but leaves
// the challenge open.
//
// trustDevice asks the Engine to register this device for future MFA bypass
// after a successful verification.
func (e *Engine) VerifyChallenge(
	ctx context.Context,
	challengeToken string,
	method Method,
	credential string,
	trustDevice bool,
) (*AuthOutcome, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	challengeID, secret, err := internal.DecodeToken(challengeToken)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	record, err := e.challenges.Get(ctx, challengeID.String())
	if err != nil {
		return nil, e.mapChallengeStoreError(err)
	}

	providedHash := internal.HashSecret(secret)
	if subtle.ConstantTimeCompare(providedHash[:], record.SecretHash[:]) != 1 {
		return nil, ErrInvalidOrExpiredToken
	}

	if method != Method(record.Method) && method != MethodBackupCode {
		e.emitAudit(ctx, auditEventChallengeFailure, false, record.UserID, "", method, ErrInvalidCredential, map[string]string{
			"reason": "method_not_allowed",
		})
		return nil, ErrInvalidCredential
	}

	user, err := e.directory.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}

	kind := attemptKindForMethod(method)
	if err := e.checkAttempts(ctx, user.UserID, kind); err != nil {
		if errors.Is(err, ErrTooManyAttempts) {
			e.metricInc(MetricChallengeLockedOut)
			e.emitAudit(ctx, auditEventChallengeLockedOut, false, user.UserID, "", method, err, nil)
		}
		return nil, err
	}

	matched, totpCounter, err := e.verifyChallengeCredential(ctx, record, user, method, credential)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, e.recordChallengeFailure(ctx, user.UserID, method)
	}

	if err := e.attempts.Reset(ctx, user.UserID, kind); err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	consumed, err := e.challenges.Consume(ctx, challengeID.String())
	if err != nil {
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	if !consumed {
		// Someone else verified this challenge first. Exactly one caller
		// may win; this one reads as a replay.
		e.metricInc(MetricChallengeReplay)
		e.emitAudit(ctx, auditEventChallengeReplay, false, user.UserID, "", method, ErrInvalidOrExpiredToken, nil)
		return nil, ErrInvalidOrExpiredToken
	}

	if method == MethodTotp && e.config.TOTP.EnforceReplayProtection {
		if err := e.directory.UpdateTOTPLastUsedCounter(ctx, user.UserID, totpCounter); err != nil {
			// Best effort: losing the counter update only widens the
			// replay window by one period.
			log.Printf("authgate: totp counter update failed: %v", err)
		}
	}

	if method == MethodBackupCode {
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, user.UserID, "", method, nil, nil)
	}

	var deviceToken string
	if trustDevice && e.config.TrustedDevice.Enabled {
		deviceToken, err = e.createTrustedDevice(ctx, user.UserID)
		if err != nil {
			// Trust registration failing must not undo a successful
			// verification.
			log.Printf("authgate: trusted device registration failed: %v", err)
			deviceToken = ""
		}
	}

	e.metricInc(MetricChallengeSuccess)
	e.emitAudit(ctx, auditEventChallengeSuccess, true, user.UserID, "", method, nil, nil)

	return e.completeLogin(ctx, user, deviceToken)
}

// verifyChallengeCredential dispatches to the per-method check. It reports
// match/no-match; only backend trouble is an error. For TOTP it also returns
// the matched counter for replay tracking.
func (e *Engine) verifyChallengeCredential(
	ctx context.Context,
	record *stores.ChallengeRecord,
	user UserRecord,
	method Method,
	credential string,
) (bool, int64, error) {
	switch method {
	case MethodEmail:
		if !record.HasCode() {
			return false, 0, nil
		}
		providedHash := internal.HashString(credential)
		return subtle.ConstantTimeCompare(providedHash[:], record.CodeHash[:]) == 1, 0, nil

	case MethodTotp:
		totpRecord, err := e.directory.GetTOTPSecret(ctx, user.UserID)
		if err != nil {
			e.metricInc(MetricBackendError)
			return false, 0, fmt.Errorf("totp lookup: %w", err)
		}
		if totpRecord == nil || !totpRecord.Enabled {
			return false, 0, nil
		}

		matched, counter, err := e.totp.VerifyCode(totpRecord.Secret, credential, e.now())
		if err != nil {
			return false, 0, fmt.Errorf("totp verification: %w", err)
		}
		if matched && e.config.TOTP.EnforceReplayProtection && counter <= totpRecord.LastUsedCounter {
			// Correct code, but already spent. Treat as a plain mismatch
			// so the caller learns nothing about why.
			return false, 0, nil
		}
		return matched, counter, nil

	case MethodBackupCode:
		codeHash := internal.HashString(credential)
		ok, err := e.directory.ConsumeBackupCode(ctx, user.UserID, codeHash)
		if err != nil {
			e.metricInc(MetricBackendError)
			return false, 0, fmt.Errorf("backup code verification: %w", err)
		}
		return ok, 0, nil

	default:
		return false, 0, nil
	}
}

func (e *Engine) recordChallengeFailure(ctx context.Context, userID string, method Method) error {
	exceeded, err := e.attempts.RecordFailure(ctx, userID, attemptKindForMethod(method))
	if err != nil {
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	if exceeded {
		e.metricInc(MetricChallengeLockedOut)
		e.emitAudit(ctx, auditEventChallengeLockedOut, false, userID, "", method, ErrTooManyAttempts, nil)
		return ErrTooManyAttempts
	}

	e.metricInc(MetricChallengeFailure)
	e.emitAudit(ctx, auditEventChallengeFailure, false, userID, "", method, ErrInvalidCredential, nil)
	return ErrInvalidCredential
}

func (e *Engine) mapChallengeStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
		return ErrInvalidOrExpiredToken
	default:
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
}
