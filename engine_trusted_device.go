package authgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/netip"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/internal/stores"
)

// deviceFingerprint binds a trusted-device registration to the browser and
// network it was created from. The IP contributes only its routing prefix
// (/24 for IPv4, /64 for IPv6) so DHCP churn inside one network does not
// invalidate the device.
func deviceFingerprint(ctx context.Context) [32]byte {
	ip := clientIPFromContext(ctx)
	network := ip
	if addr, err := netip.ParseAddr(ip); err == nil {
		bits := 24
		if addr.Is6() && !addr.Is4In6() {
			bits = 64
		}
		if prefix, err := addr.Prefix(bits); err == nil {
			network = prefix.String()
		}
	}
	return internal.HashString(userAgentFromContext(ctx) + "|" + network)
}

// createTrustedDevice registers the calling device for MFA bypass and
// returns the opaque device token to hand back to the client.
func (e *Engine) createTrustedDevice(ctx context.Context, userID string) (string, error) {
	deviceID, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return "", err
	}

	now := e.now()
	record := &stores.TrustedDeviceRecord{
		UserID:          userID,
		SecretHash:      internal.HashSecret(secret),
		FingerprintHash: deviceFingerprint(ctx),
		RegisteredAt:    now.Unix(),
		ExpiresAt:       now.Add(e.config.TrustedDevice.DeviceTTL).Unix(),
		LastUsedAt:      now.Unix(),
	}
	if err := e.devices.Save(ctx, deviceID.String(), record, e.config.TrustedDevice.DeviceTTL); err != nil {
		e.metricInc(MetricBackendError)
		return "", fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTrustedDeviceCreated, true, userID, "", 0, nil, nil)
	return internal.EncodeToken(deviceID, secret), nil
}

// tryTrustedDeviceBypass reports whether the device token attached to ctx
// entitles this login to skip MFA. Every failure path, storage trouble
// included, answers false: when in doubt, challenge.
func (e *Engine) tryTrustedDeviceBypass(ctx context.Context, user UserRecord) bool {
	if !e.config.TrustedDevice.Enabled {
		return false
	}
	deviceToken := trustedDeviceFromContext(ctx)
	if deviceToken == "" {
		return false
	}

	reject := func(reason string) bool {
		e.metricInc(MetricTrustedDeviceRejected)
		e.emitAudit(ctx, auditEventTrustedDeviceRejected, false, user.UserID, "", 0, nil, map[string]string{
			"reason": reason,
		})
		return false
	}

	deviceID, secret, err := internal.DecodeToken(deviceToken)
	if err != nil {
		return reject("malformed_token")
	}

	record, err := e.devices.Get(ctx, deviceID.String())
	if err != nil {
		if errors.Is(err, stores.ErrTrustedDeviceNotFound) || errors.Is(err, stores.ErrTrustedDeviceExpired) {
			return reject("unknown_or_expired")
		}
		e.metricInc(MetricBackendError)
		return reject("backend_unavailable")
	}

	if record.UserID != user.UserID {
		return reject("user_mismatch")
	}

	providedHash := internal.HashSecret(secret)
	if subtle.ConstantTimeCompare(providedHash[:], record.SecretHash[:]) != 1 {
		return reject("secret_mismatch")
	}

	fingerprint := deviceFingerprint(ctx)
	if subtle.ConstantTimeCompare(fingerprint[:], record.FingerprintHash[:]) != 1 {
		return reject("fingerprint_mismatch")
	}

	e.devices.Touch(ctx, deviceID.String(), record)
	e.metricInc(MetricTrustedDeviceUsed)
	e.emitAudit(ctx, auditEventTrustedDeviceUsed, true, user.UserID, "", 0, nil, nil)
	return true
}

// RevokeTrustedDevice removes one trusted-device registration.
func (e *Engine) RevokeTrustedDevice(ctx context.Context, userID, deviceToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	deviceID, _, err := internal.DecodeToken(deviceToken)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	existed, err := e.devices.Delete(ctx, userID, deviceID.String())
	if err != nil {
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	if !existed {
		return ErrInvalidOrExpiredToken
	}

	e.emitAudit(ctx, auditEventTrustedDeviceRevoked, true, userID, "", 0, nil, nil)
	return nil
}

// RevokeTrustedDevices removes every trusted-device registration for the
// user and returns how many existed.
func (e *Engine) RevokeTrustedDevices(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.devices.DeleteAllForUser(ctx, userID)
	if err != nil {
		e.metricInc(MetricBackendError)
		return 0, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	if n > 0 {
		e.emitAudit(ctx, auditEventTrustedDeviceRevoked, true, userID, "", 0, nil, map[string]string{
			"revoked_devices": fmt.Sprintf("%d", n),
		})
	}
	return n, nil
}
