package authgate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/limiters"
	internalmetrics "github.com/authgate/authgate/internal/metrics"
	"github.com/authgate/authgate/internal/stores"
	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/token"
)

// Builder assembles an [Engine]. Configure, then call Build exactly once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	directory Directory
	notifier  Notifier
	auditSink AuditSink
	clock     Clock

	built bool
}

// New returns a Builder preloaded with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory supplies the user store integration. Required.
func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

// WithNotifier supplies the email-code delivery channel. Required when the
// method preference includes email.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source. Tests use this to drive expiry and
// lockout without sleeping.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if b.notifier == nil {
		for _, m := range cfg.Challenge.MethodPreference {
			if m == MethodEmail {
				return nil, errors.New("notifier required when email is a preferred method")
			}
		}
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         now,
	})
	if err != nil {
		return nil, err
	}

	var metrics *internalmetrics.Metrics
	if cfg.Metrics.Enabled {
		metrics = internalmetrics.New()
	}

	engine := &Engine{
		config: cfg,
		tokens: token.NewStore(
			b.redis,
			cfg.Rotation.RedisPrefix,
			cfg.Rotation.RefreshTTL,
			cfg.Rotation.AbsoluteSessionLifetime,
			now,
		),
		challenges: stores.NewChallengeStore(b.redis, cfg.Rotation.RedisPrefix+"c", now),
		devices:    stores.NewTrustedDeviceStore(b.redis, cfg.Rotation.RedisPrefix+"d", now),
		attempts: limiters.NewAttemptTracker(b.redis, limiters.AttemptConfig{
			MaxAttempts:     cfg.Attempts.MaxAttempts,
			Window:          cfg.Attempts.Window,
			LockoutDuration: cfg.Attempts.LockoutDuration,
		}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics:    metrics,
		totp:       newTOTPManager(cfg.TOTP),
		jwtManager: jwtManager,
		directory:  b.directory,
		notifier:   b.notifier,
		now:        now,
	}

	b.built = true
	return engine, nil
}
