package authgate

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown identifier or a wrong
	// password. The two cases are intentionally indistinguishable to prevent
	// account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when the account exists but may not log in.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidOrExpiredToken covers challenge or refresh tokens that are
	// malformed, unknown, expired, or already consumed.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrReuseDetected is returned when an already-rotated refresh token is
	// presented again. The entire token family is revoked before this error
	// is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrSessionExpired is returned when a refresh chain reaches the absolute
	// session ceiling. Unlike ErrInvalidOrExpiredToken it signals that a full
	// re-login is required, not a silent refresh.
	ErrSessionExpired = errors.New("session expired")
	// ErrTooManyAttempts is returned when the verification path is locked out
	// for this user. The presented credential is not inspected.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidCredential is returned for a wrong MFA code, TOTP value, or
	// backup code on an otherwise valid challenge.
	ErrInvalidCredential = errors.New("invalid verification credential")
	// ErrChallengeUnavailable is returned when the challenge backend cannot
	// be reached.
	ErrChallengeUnavailable = errors.New("challenge backend unavailable")
	// ErrRotationUnavailable is returned when the token store cannot be
	// reached.
	ErrRotationUnavailable = errors.New("token backend unavailable")
	// ErrEngineNotReady indicates the Engine was not built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound is returned by Directory implementations for an unknown
	// user. The Engine maps it to ErrInvalidCredentials on login paths so the
	// caller cannot distinguish a missing account from a wrong password.
	ErrUserNotFound = errors.New("user not found")
)
