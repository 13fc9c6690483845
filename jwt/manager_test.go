package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func hs256Config() Config {
	return Config{
		AccessTTL:     10 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authgate-test",
		Audience:      "api",
	}
}

func TestHS256RoundTrip(t *testing.T) {
	manager, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := manager.CreateAccess("u1", "fam1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := manager.ParseAccess(signed)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "u1" || claims.FID != "fam1" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "authgate-test" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	manager, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := manager.CreateAccess("u1", "fam1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := manager.ParseAccess(signed); err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
}

func TestAlgorithmPinning(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	edManager, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager ed25519 failed: %v", err)
	}

	hsManager, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager hs256 failed: %v", err)
	}

	signed, err := hsManager.CreateAccess("u1", "fam1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	// An HMAC token must not verify against the Ed25519 manager.
	if _, err := edManager.ParseAccess(signed); err == nil {
		t.Fatal("cross-algorithm token accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := hs256Config()
	cfg.AccessTTL = time.Minute
	// Sign in the past; verification compares against the wall clock.
	cfg.Clock = func() time.Time { return time.Now().Add(-time.Hour) }

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := manager.CreateAccess("u1", "fam1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := manager.ParseAccess(signed); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	manager, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	for _, input := range []string{"", "garbage", "a.b.c"} {
		if _, err := manager.ParseAccess(input); err == nil {
			t.Fatalf("ParseAccess(%q) accepted", input)
		}
	}
}
