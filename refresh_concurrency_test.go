package authgate

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	dir := newMockDirectory()
	seedPasswordOnlyUser(dir)
	engine, _ := newTestEngine(t, dir, newTestClock(), nil)

	login, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.RefreshSession(context.Background(), login.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	reuse := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrReuseDetected):
			reuse++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", success)
	}
	if reuse != n-1 {
		t.Fatalf("expected %d reuse detections, got %d", n-1, reuse)
	}
}

func TestVerifyChallengeConcurrencySingleWinner(t *testing.T) {
	dir := newMockDirectory()
	seedMFAEmailUser(dir)
	engine, notifier := newTestEngine(t, dir, newTestClock(), nil)
	ctx := context.Background()

	challenge := loginForChallenge(t, engine, ctx)
	code := notifier.waitForCode(t)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.VerifyChallenge(ctx, challenge.Token, MethodEmail, code, false)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	spent := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInvalidOrExpiredToken):
			spent++
		default:
			t.Fatalf("unexpected verification error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one verification winner, got %d", success)
	}
	if spent != n-1 {
		t.Fatalf("expected %d spent-challenge rejections, got %d", n-1, spent)
	}
}
