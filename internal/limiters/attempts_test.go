package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T, cfg AttemptConfig) (*AttemptTracker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewAttemptTracker(client, cfg), mr
}

func TestTrackerLockoutAtThreshold(t *testing.T) {
	tracker, _ := newTestTracker(t, AttemptConfig{
		MaxAttempts:     3,
		Window:          10 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	})
	ctx := context.Background()

	if err := tracker.Check(ctx, "u1", "totp"); err != nil {
		t.Fatalf("fresh check: %v", err)
	}

	for i := 0; i < 2; i++ {
		exceeded, err := tracker.RecordFailure(ctx, "u1", "totp")
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if exceeded {
			t.Fatalf("failure %d reported as exceeded", i)
		}
	}

	exceeded, err := tracker.RecordFailure(ctx, "u1", "totp")
	if err != nil {
		t.Fatalf("threshold RecordFailure: %v", err)
	}
	if !exceeded {
		t.Fatal("threshold failure not reported as exceeded")
	}

	if err := tracker.Check(ctx, "u1", "totp"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("locked check: got %v, want ErrLockedOut", err)
	}
}

func TestTrackerKindsAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t, AttemptConfig{
		MaxAttempts:     1,
		Window:          time.Minute,
		LockoutDuration: time.Minute,
	})
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, "u1", "totp"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := tracker.Check(ctx, "u1", "totp"); !errors.Is(err, ErrLockedOut) {
		t.Fatal("totp should be locked")
	}
	if err := tracker.Check(ctx, "u1", "backup"); err != nil {
		t.Fatalf("backup kind affected by totp lockout: %v", err)
	}
	if err := tracker.Check(ctx, "u2", "totp"); err != nil {
		t.Fatalf("other user affected by lockout: %v", err)
	}
}

func TestTrackerResetClearsCounter(t *testing.T) {
	tracker, _ := newTestTracker(t, AttemptConfig{
		MaxAttempts:     2,
		Window:          time.Minute,
		LockoutDuration: time.Minute,
	})
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, "u1", "email"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := tracker.Reset(ctx, "u1", "email"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	// Post-reset the budget starts over.
	exceeded, err := tracker.RecordFailure(ctx, "u1", "email")
	if err != nil {
		t.Fatalf("RecordFailure after reset: %v", err)
	}
	if exceeded {
		t.Fatal("single failure after reset reported as exceeded")
	}
}

func TestTrackerWindowAndLockoutTTLs(t *testing.T) {
	tracker, mr := newTestTracker(t, AttemptConfig{
		MaxAttempts:     2,
		Window:          time.Minute,
		LockoutDuration: time.Hour,
	})
	ctx := context.Background()

	// First failure opens the counting window.
	if _, err := tracker.RecordFailure(ctx, "u1", "password"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := tracker.Check(ctx, "u1", "password"); err != nil {
		t.Fatalf("counter survived the window: %v", err)
	}

	// Hitting the threshold stretches the TTL to the lockout duration.
	for i := 0; i < 2; i++ {
		if _, err := tracker.RecordFailure(ctx, "u1", "password"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	mr.FastForward(2 * time.Minute)
	if err := tracker.Check(ctx, "u1", "password"); !errors.Is(err, ErrLockedOut) {
		t.Fatal("lockout expired with the counting window")
	}

	mr.FastForward(time.Hour)
	if err := tracker.Check(ctx, "u1", "password"); err != nil {
		t.Fatalf("lockout survived its duration: %v", err)
	}
}
