// Package authgate provides the session- and identity-security core for a web
// backend: rotating opaque refresh tokens organized into revocable families
// with reuse detection, and a multi-factor challenge state machine covering
// email codes, TOTP, and backup codes, with brute-force lockout and
// trusted-device bypass.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (AuthOutcome, ChallengeResult, UserRecord). Internal
// coordination (challenge persistence, attempt tracking, audit dispatch)
// lives under internal/ and is never exported. Refresh-token family storage
// lives in the token package; access-token signing in the jwt package.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Hash or verify passwords: credential verification is delegated to the
//     embedding service through [Directory].
//   - Deliver email or SMS: code dispatch is delegated through [Notifier].
//
// # Concurrency contract
//
// Refresh rotation is linearizable per token: of N concurrent calls
// presenting the same refresh token, exactly one rotates and the rest observe
// reuse. The storage layer resolves the race with an atomic compare-and-swap;
// the Engine never holds locks.
package authgate
