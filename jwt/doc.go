// Package jwt signs and verifies the short-lived access tokens minted
// alongside refresh tokens.
//
// Access tokens are stateless: they are never stored and cannot be revoked
// individually, which is why their TTL is short and why each carries the ID
// of the refresh family it belongs to.
//
// Supported algorithms are Ed25519 (default) and HS256. Verification pins
// the configured algorithm; tokens signed with anything else are rejected
// before key material is consulted.
package jwt
