package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockedOut is returned by Check when the (user, kind) pair has
	// exhausted its attempt budget.
	ErrLockedOut = errors.New("attempt budget exhausted")
	// ErrRedisUnavailable wraps any Redis transport failure.
	ErrRedisUnavailable = errors.New("attempt tracker redis unavailable")
)

// AttemptConfig holds brute-force tracking parameters. Window is the fixed
// counting window opened by the first failure; LockoutDuration replaces the
// window TTL once the threshold is reached, so the lockout outlives the
// window it was earned in.
type AttemptConfig struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
}

// AttemptTracker counts failed credential verifications per (user, kind)
// pair, where kind is a verification path such as "password", "email",
// "totp", or "backup". Each kind has an independent counter: locking out TOTP
// does not lock out backup codes.
type AttemptTracker struct {
	redis  redis.UniversalClient
	config AttemptConfig
}

func NewAttemptTracker(redisClient redis.UniversalClient, cfg AttemptConfig) *AttemptTracker {
	return &AttemptTracker{
		redis:  redisClient,
		config: cfg,
	}
}

// Check returns ErrLockedOut when the pair is at or over the threshold.
// Check never increments; it is safe to call before inspecting a credential.
func (t *AttemptTracker) Check(ctx context.Context, userID, kind string) error {
	count, err := t.redis.Get(ctx, attemptKey(userID, kind)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(t.config.MaxAttempts) {
		return ErrLockedOut
	}

	return nil
}

// RecordFailure increments the counter and reports whether this failure
// crossed the lockout threshold. The first failure opens the counting
// window; the threshold failure stretches the key TTL to the lockout
// duration.
func (t *AttemptTracker) RecordFailure(ctx context.Context, userID, kind string) (bool, error) {
	key := attemptKey(userID, kind)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch {
	case count == 1:
		if err := t.redis.Expire(ctx, key, t.config.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	case count == int64(t.config.MaxAttempts):
		if err := t.redis.Expire(ctx, key, t.config.LockoutDuration).Err(); err != nil {
			return true, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count >= int64(t.config.MaxAttempts), nil
}

// Reset clears the counter after a successful verification. Only the kind
// that succeeded is cleared.
func (t *AttemptTracker) Reset(ctx context.Context, userID, kind string) error {
	if err := t.redis.Del(ctx, attemptKey(userID, kind)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func attemptKey(userID, kind string) string {
	return "aga:" + kind + ":" + userID
}
