// Package stores provides Redis-backed record stores for the transient state
// of the authentication flows: pending MFA challenges and trusted-device
// registrations.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL
// and additionally embeds the expiry in the record, so a clock injected for
// tests governs expiry even when miniredis does not advance TTLs. Challenge
// consumption is delete-based: DEL's removed-key count decides the single
// winner among concurrent verifiers.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package.
//   - Log or expose plaintext secrets; only digests are stored.
//   - Make verification decisions. Stores persist and consume; the Engine
//     compares credentials.
package stores
