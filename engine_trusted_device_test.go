package authgate

import (
	"context"
	"testing"
)

func deviceContext(ip, userAgent string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, userAgent)
}

func TestTrustedDeviceBypassesChallenge(t *testing.T) {
	dir := newMockDirectory()
	seedMFAEmailUser(dir)
	engine, notifier := newTestEngine(t, dir, newTestClock(), nil)
	ctx := deviceContext("203.0.113.7", "test-browser/1.0")

	challenge := loginForChallenge(t, engine, ctx)
	code := notifier.waitForCode(t)

	verified, err := engine.VerifyChallenge(ctx, challenge.Token, MethodEmail, code, true)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if verified.TrustedDeviceToken == "" {
		t.Fatal("no trusted device token issued")
	}

	// Same device: no challenge this time.
	trusted := WithTrustedDevice(ctx, verified.TrustedDeviceToken)
	outcome, err := engine.Login(trusted, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("trusted login failed: %v", err)
	}
	if outcome.MFARequired {
		t.Fatal("trusted device was still challenged")
	}
	if outcome.RefreshToken == "" {
		t.Fatal("no tokens issued on trusted login")
	}
}

func TestTrustedDeviceRejectedFromOtherNetwork(t *testing.T) {
	dir := newMockDirectory()
	seedMFAEmailUser(dir)
	engine, notifier := newTestEngine(t, dir, newTestClock(), nil)
	homeCtx := deviceContext("203.0.113.7", "test-browser/1.0")

	challenge := loginForChallenge(t, engine, homeCtx)
	code := notifier.waitForCode(t)
	verified, err := engine.VerifyChallenge(homeCtx, challenge.Token, MethodEmail, code, true)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}

	// Same /24 but different host: still trusted.
	nearbyCtx := WithTrustedDevice(deviceContext("203.0.113.99", "test-browser/1.0"), verified.TrustedDeviceToken)
	outcome, err := engine.Login(nearbyCtx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("nearby login failed: %v", err)
	}
	if outcome.MFARequired {
		t.Fatal("same-network device was challenged")
	}

	// Different network: the fingerprint no longer matches, challenge again.
	elsewhereCtx := WithTrustedDevice(deviceContext("198.51.100.1", "test-browser/1.0"), verified.TrustedDeviceToken)
	outcome, err = engine.Login(elsewhereCtx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("elsewhere login failed: %v", err)
	}
	if !outcome.MFARequired {
		t.Fatal("foreign network bypassed the challenge")
	}
}

func TestTrustedDeviceRejectedForOtherUser(t *testing.T) {
	dir := newMockDirectory()
	seedMFAEmailUser(dir)
	dir.addUser(UserRecord{
		UserID:     "u2",
		Identifier: "carol",
		Email:      "carol@example.com",
		Active:     true,
		MFAEnabled: true,
	}, "other-password-456")
	engine, notifier := newTestEngine(t, dir, newTestClock(), nil)
	ctx := deviceContext("203.0.113.7", "test-browser/1.0")

	challenge := loginForChallenge(t, engine, ctx)
	code := notifier.waitForCode(t)
	verified, err := engine.VerifyChallenge(ctx, challenge.Token, MethodEmail, code, true)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}

	// Alice's device token does nothing for Carol.
	trusted := WithTrustedDevice(ctx, verified.TrustedDeviceToken)
	outcome, err := engine.Login(trusted, "carol", "other-password-456")
	if err != nil {
		t.Fatalf("carol login failed: %v", err)
	}
	if !outcome.MFARequired {
		t.Fatal("device token crossed user boundary")
	}
}

func TestRevokeTrustedDevicesRestoresChallenge(t *testing.T) {
	dir := newMockDirectory()
	seedMFAEmailUser(dir)
	engine, notifier := newTestEngine(t, dir, newTestClock(), nil)
	ctx := deviceContext("203.0.113.7", "test-browser/1.0")

	challenge := loginForChallenge(t, engine, ctx)
	code := notifier.waitForCode(t)
	verified, err := engine.VerifyChallenge(ctx, challenge.Token, MethodEmail, code, true)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}

	n, err := engine.RevokeTrustedDevices(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeTrustedDevices failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("revoked %d devices, want 1", n)
	}

	trusted := WithTrustedDevice(ctx, verified.TrustedDeviceToken)
	outcome, err := engine.Login(trusted, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login after revoke failed: %v", err)
	}
	if !outcome.MFARequired {
		t.Fatal("revoked device still bypassed the challenge")
	}
}
