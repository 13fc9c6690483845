package authgate

import (
	"errors"
	"time"
)

// Config holds all Engine tuning parameters. Configure once, pass to
// [Builder.WithConfig], and treat as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Rotation      RotationConfig
	Challenge     ChallengeConfig
	Attempts      AttemptsConfig
	TrustedDevice TrustedDeviceConfig
	TOTP          TOTPConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// JWTConfig controls access-token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// RotationConfig controls refresh-token rotation and the session ceiling.
//
// RefreshTTL is the rotation lifetime of a single token: short, renewed on
// every rotation. AbsoluteSessionLifetime is the ceiling measured from first
// login; it never moves, no matter how often the client rotates.
type RotationConfig struct {
	RedisPrefix             string
	RefreshTTL              time.Duration
	AbsoluteSessionLifetime time.Duration
}

// ChallengeConfig controls MFA challenge issuance.
type ChallengeConfig struct {
	ChallengeTTL    time.Duration
	EmailCodeDigits int

	// MethodPreference orders the methods considered when issuing a
	// challenge; the first one the user has configured wins. Backup codes
	// are not issuable and are ignored here.
	MethodPreference []Method

	// RequireForAllUsers makes MFA mandatory even for accounts that have not
	// enabled a method (such accounts fall back to email codes).
	RequireForAllUsers bool
}

// AttemptsConfig controls per-(user, method) brute-force tracking.
type AttemptsConfig struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
}

// TrustedDeviceConfig controls the MFA-bypass device registry.
type TrustedDeviceConfig struct {
	Enabled   bool
	DeviceTTL time.Duration
}

// TOTPConfig controls TOTP verification.
type TOTPConfig struct {
	Digits    int
	Period    int
	Skew      int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"

	// EnforceReplayProtection rejects a code whose HOTP counter is not
	// strictly greater than the last accepted one.
	EnforceReplayProtection bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     10 * time.Minute,
			SigningMethod: "ed25519",
		},
		Rotation: RotationConfig{
			RedisPrefix:             "agt",
			RefreshTTL:              72 * time.Hour,
			AbsoluteSessionLifetime: 30 * 24 * time.Hour,
		},
		Challenge: ChallengeConfig{
			ChallengeTTL:     5 * time.Minute,
			EmailCodeDigits:  6,
			MethodPreference: []Method{MethodTotp, MethodEmail},
		},
		Attempts: AttemptsConfig{
			MaxAttempts:     5,
			Window:          10 * time.Minute,
			LockoutDuration: 15 * time.Minute,
		},
		TrustedDevice: TrustedDeviceConfig{
			Enabled:   true,
			DeviceTTL: 30 * 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Digits:                  6,
			Period:                  30,
			Skew:                    1,
			Algorithm:               "SHA1",
			EnforceReplayProtection: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Rotation.RefreshTTL <= 0 {
		return errors.New("rotation refresh TTL must be positive")
	}
	if cfg.Rotation.AbsoluteSessionLifetime > 0 &&
		cfg.Rotation.AbsoluteSessionLifetime < cfg.Rotation.RefreshTTL {
		return errors.New("absolute session lifetime must not be shorter than refresh TTL")
	}
	if cfg.Challenge.ChallengeTTL <= 0 {
		return errors.New("challenge TTL must be positive")
	}
	if cfg.Challenge.EmailCodeDigits < 6 || cfg.Challenge.EmailCodeDigits > 10 {
		return errors.New("email code digits must be between 6 and 10")
	}
	for _, m := range cfg.Challenge.MethodPreference {
		if m != MethodEmail && m != MethodTotp {
			return errors.New("method preference may only contain email and totp")
		}
	}
	if cfg.Attempts.MaxAttempts <= 0 {
		return errors.New("attempt threshold must be positive")
	}
	if cfg.Attempts.Window <= 0 || cfg.Attempts.LockoutDuration <= 0 {
		return errors.New("attempt window and lockout duration must be positive")
	}
	if cfg.TrustedDevice.Enabled && cfg.TrustedDevice.DeviceTTL <= 0 {
		return errors.New("trusted device TTL must be positive")
	}
	if cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 10 {
		return errors.New("totp digits must be between 6 and 10")
	}
	if cfg.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if cfg.TOTP.Skew < 0 || cfg.TOTP.Skew > 2 {
		return errors.New("totp skew must be between 0 and 2")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = append([]byte(nil), cfg.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	out.Challenge.MethodPreference = append([]Method(nil), cfg.Challenge.MethodPreference...)
	return out
}
