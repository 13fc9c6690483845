package token

import "time"

// Record is the server-side state of one refresh token. Only the SHA-256
// digest of the bearer secret is stored; a storage dump cannot be replayed.
type Record struct {
	TokenID    string
	FamilyID   string
	UserID     string
	SecretHash [32]byte

	IssuedAt         time.Time
	ExpiresAt        time.Time
	SessionStartedAt time.Time

	Revoked     bool
	RevokedAt   time.Time
	CreatedByIP string
}

// RotateStatus is the outcome of a rotation attempt, decoded from the Lua
// compare-and-swap script.
type RotateStatus int

const (
	// RotateNotFound: no record for the token ID.
	RotateNotFound RotateStatus = iota
	// RotateExpired: the token's own rotation TTL had passed.
	RotateExpired
	// RotateReused: the token was already rotated or revoked. Reuse signal.
	RotateReused
	// RotateRotated: this caller won; a successor was persisted.
	RotateRotated
	// RotateCeiling: the family's absolute session lifetime is over.
	RotateCeiling
	// RotateMismatch: token ID exists but the secret digest does not match.
	RotateMismatch
)

// RotateResult carries the script outcome plus the family context needed for
// revocation and auditing on the failure paths.
type RotateResult struct {
	Status           RotateStatus
	FamilyID         string
	UserID           string
	SessionStartedAt time.Time
}
