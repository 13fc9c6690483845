package authgate

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Method identifies a second-factor verification method.
type Method uint8

const (
	// MethodEmail verifies a short numeric code delivered out of band.
	MethodEmail Method = iota + 1
	// MethodTotp verifies a time-based one-time password (RFC 6238).
	MethodTotp
	// MethodBackupCode verifies a single-use recovery code. Backup codes are
	// never the issued challenge method; they are an alternate path the
	// client may choose at verification time.
	MethodBackupCode
)

// String returns the wire name of the method ("email", "totp", "backup").
func (m Method) String() string {
	switch m {
	case MethodEmail:
		return "email"
	case MethodTotp:
		return "totp"
	case MethodBackupCode:
		return "backup"
	default:
		return "unknown"
	}
}

// ParseMethod maps a wire name back to a [Method].
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return MethodEmail, nil
	case "totp":
		return MethodTotp, nil
	case "backup", "backup_code":
		return MethodBackupCode, nil
	default:
		return 0, errors.New("unknown verification method")
	}
}

// UserRecord is the account view the Engine needs from the embedding
// service's user store. Identity itself is owned by that store; the Engine
// references users by ID only.
type UserRecord struct {
	UserID                 string
	Identifier             string
	Email                  string
	Active                 bool
	MFAEnabled             bool
	RequiresPasswordChange bool
}

// TOTPRecord carries a user's TOTP enrollment state. LastUsedCounter is the
// highest HOTP counter accepted so far and backs replay protection.
type TOTPRecord struct {
	Secret          []byte
	Enabled         bool
	LastUsedCounter int64
}

// Directory is the interface callers must implement to integrate authgate
// with their user database. Password verification is delegated here so the
// Engine never sees a credential hash.
type Directory interface {
	FindByID(ctx context.Context, userID string) (UserRecord, error)
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (UserRecord, error)
	VerifyPassword(ctx context.Context, userID, password string) (bool, error)
	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)
	UpdateTOTPLastUsedCounter(ctx context.Context, userID string, counter int64) error

	// ConsumeBackupCode atomically marks the code with the given hash as used
	// and reports whether it was present and unused. A code that was already
	// consumed must return false: this is the storage-level guarantee behind
	// backup-code single use.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)
	HasBackupCodes(ctx context.Context, userID string) (bool, error)
}

// Notifier delivers MFA codes. Dispatch is fire-and-forget: a delivery
// failure is logged but never fails challenge issuance.
type Notifier interface {
	SendMFACode(ctx context.Context, email, code string, expiresIn time.Duration) error
}

// Clock supplies the current time. All expiry and lockout math goes through
// the injected clock so tests can control it.
type Clock func() time.Time

// ChallengeResult describes an issued MFA challenge: the opaque challenge
// token, the method the code (if any) was dispatched for, and every method
// the user may verify with.
type ChallengeResult struct {
	Token          string
	Method         Method
	AllowedMethods []Method
	ExpiresAt      time.Time
}

// AuthOutcome is returned by [Engine.Login], [Engine.RefreshSession], and
// [Engine.VerifyChallenge]. Either tokens are present, or MFARequired is set
// with a Challenge; failures are reported as errors.
type AuthOutcome struct {
	AccessToken      string
	RefreshToken     string
	FamilyID         string
	SessionStartedAt time.Time

	RequiresPasswordChange bool

	MFARequired bool
	Challenge   *ChallengeResult

	// TrustedDeviceToken is set when VerifyChallenge was asked to trust the
	// device and registration succeeded.
	TrustedDeviceToken string
}
