package token

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, refreshTTL, lifetime time.Duration) (*Store, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(client, "agt", refreshTTL, lifetime, clock.Now), clock
}

func hashOf(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func seedToken(t *testing.T, store *Store, clock *fakeClock, tokenID, familyID, secret string) {
	t.Helper()

	now := clock.Now()
	err := store.Create(context.Background(), &Record{
		TokenID:          tokenID,
		FamilyID:         familyID,
		UserID:           "u1",
		SecretHash:       hashOf(secret),
		IssuedAt:         now,
		ExpiresAt:        now.Add(store.refreshTTL),
		SessionStartedAt: now,
		CreatedByIP:      "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func TestRotateHappyPath(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 24*time.Hour)
	ctx := context.Background()
	seedToken(t, store, clock, "tok1", "fam1", "secret1")

	result, err := store.Rotate(ctx, "tok1", hashOf("secret1"), "tok2", hashOf("secret2"), "203.0.113.7")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Status != RotateRotated {
		t.Fatalf("status = %v, want RotateRotated", result.Status)
	}
	if result.FamilyID != "fam1" || result.UserID != "u1" {
		t.Fatalf("unexpected context: %+v", result)
	}

	old, err := store.Get(ctx, "tok1")
	if err != nil {
		t.Fatalf("Get old token failed: %v", err)
	}
	if !old.Revoked {
		t.Fatal("rotated-away token not marked revoked")
	}

	successor, err := store.Get(ctx, "tok2")
	if err != nil {
		t.Fatalf("Get successor failed: %v", err)
	}
	if successor.Revoked || successor.FamilyID != "fam1" {
		t.Fatalf("unexpected successor state: %+v", successor)
	}
	if !successor.SessionStartedAt.Equal(old.SessionStartedAt) {
		t.Fatal("session start drifted across rotation")
	}
}

func TestRotateUnknownToken(t *testing.T) {
	store, _ := newTestStore(t, time.Hour, 24*time.Hour)

	result, err := store.Rotate(context.Background(), "missing", hashOf("x"), "tok2", hashOf("y"), "")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Status != RotateNotFound {
		t.Fatalf("status = %v, want RotateNotFound", result.Status)
	}
}

func TestRotateSecretMismatch(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 24*time.Hour)
	seedToken(t, store, clock, "tok1", "fam1", "secret1")

	result, err := store.Rotate(context.Background(), "tok1", hashOf("wrong"), "tok2", hashOf("y"), "")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Status != RotateMismatch {
		t.Fatalf("status = %v, want RotateMismatch", result.Status)
	}
}

func TestRotateRevokedTokenReportsReuse(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 24*time.Hour)
	ctx := context.Background()
	seedToken(t, store, clock, "tok1", "fam1", "secret1")

	if _, err := store.Rotate(ctx, "tok1", hashOf("secret1"), "tok2", hashOf("secret2"), ""); err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	result, err := store.Rotate(ctx, "tok1", hashOf("secret1"), "tok3", hashOf("secret3"), "")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Status != RotateReused {
		t.Fatalf("status = %v, want RotateReused", result.Status)
	}
	if result.FamilyID != "fam1" {
		t.Fatalf("reuse context family = %q, want fam1", result.FamilyID)
	}

	// The losing attempt must not have created its successor.
	if _, err := store.Get(ctx, "tok3"); err == nil {
		t.Fatal("reuse attempt persisted a successor token")
	}
}

func TestRotateExpiredToken(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 24*time.Hour)
	seedToken(t, store, clock, "tok1", "fam1", "secret1")

	clock.Advance(time.Hour + time.Second)
	result, err := store.Rotate(context.Background(), "tok1", hashOf("secret1"), "tok2", hashOf("secret2"), "")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Status != RotateExpired {
		t.Fatalf("status = %v, want RotateExpired", result.Status)
	}
}

func TestRotatePastCeiling(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 2*time.Hour)
	ctx := context.Background()
	seedToken(t, store, clock, "tok1", "fam1", "secret1")

	clock.Advance(50 * time.Minute)
	result, err := store.Rotate(ctx, "tok1", hashOf("secret1"), "tok2", hashOf("secret2"), "")
	if err != nil || result.Status != RotateRotated {
		t.Fatalf("mid-session rotation: %v, %v", result, err)
	}

	clock.Advance(80 * time.Minute)
	result, err = store.Rotate(ctx, "tok2", hashOf("secret2"), "tok3", hashOf("secret3"), "")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Status != RotateCeiling {
		t.Fatalf("status = %v, want RotateCeiling", result.Status)
	}
	if result.FamilyID != "fam1" || result.UserID != "u1" {
		t.Fatalf("ceiling context missing: %+v", result)
	}
}

func TestRevokeFamilyIsIdempotent(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 24*time.Hour)
	ctx := context.Background()
	seedToken(t, store, clock, "tok1", "fam1", "secret1")

	if _, err := store.Rotate(ctx, "tok1", hashOf("secret1"), "tok2", hashOf("secret2"), ""); err != nil {
		t.Fatalf("rotation failed: %v", err)
	}

	// tok1 is already revoked by rotation; only tok2 flips.
	n, err := store.RevokeFamily(ctx, "fam1")
	if err != nil {
		t.Fatalf("RevokeFamily failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("revoked %d tokens, want 1", n)
	}

	n, err = store.RevokeFamily(ctx, "fam1")
	if err != nil {
		t.Fatalf("second RevokeFamily failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("second revocation flipped %d tokens, want 0", n)
	}
}

func TestFamiliesForUser(t *testing.T) {
	store, clock := newTestStore(t, time.Hour, 24*time.Hour)
	ctx := context.Background()
	seedToken(t, store, clock, "tok1", "fam1", "secret1")
	seedToken(t, store, clock, "tok2", "fam2", "secret2")

	families, err := store.FamiliesForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FamiliesForUser failed: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("got %d families, want 2", len(families))
	}

	none, err := store.FamiliesForUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("FamiliesForUser for unknown user failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("unknown user has %d families, want 0", len(none))
	}
}
