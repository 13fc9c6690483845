// Package internal holds cryptographic primitives shared by the authgate
// packages: token identifier and secret generation, the opaque token codec,
// and numeric OTP generation.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

const (
	// TokenIDSize is the byte length of a token or challenge identifier.
	TokenIDSize = 16
	// SecretSize is the byte length of the bearer secret carried alongside
	// an identifier in an opaque token.
	SecretSize = 32

	rawTokenSize = TokenIDSize + SecretSize
)

// ErrMalformedToken is returned by DecodeToken for input that is not a
// well-formed opaque token. Callers map it to their public invalid-token
// error.
var ErrMalformedToken = errors.New("malformed opaque token")

// TokenID is a random 128-bit identifier. It is stored server side and is
// safe to log; the secret half of a token never is.
type TokenID [TokenIDSize]byte

// String renders the identifier in unpadded base64url, the same alphabet the
// full opaque token uses.
func (id TokenID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewTokenID returns a new random identifier.
func NewTokenID() (TokenID, error) {
	var id TokenID
	if _, err := rand.Read(id[:]); err != nil {
		return TokenID{}, fmt.Errorf("generate token id: %w", err)
	}
	return id, nil
}

// NewSecret returns a new random 256-bit bearer secret.
func NewSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return [SecretSize]byte{}, fmt.Errorf("generate token secret: %w", err)
	}
	return secret, nil
}

// HashSecret returns the SHA-256 digest of a bearer secret. Only the digest
// is ever persisted, so a storage dump cannot be replayed as live tokens.
func HashSecret(secret [SecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashString returns the SHA-256 digest of an arbitrary credential string,
// used for email codes and backup codes.
func HashString(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

// EncodeToken packs an identifier and its secret into the opaque wire form:
// 48 raw bytes, unpadded base64url.
func EncodeToken(id TokenID, secret [SecretSize]byte) string {
	raw := make([]byte, 0, rawTokenSize)
	raw = append(raw, id[:]...)
	raw = append(raw, secret[:]...)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeToken splits an opaque token back into identifier and secret. Any
// malformed input, wrong length included, returns ErrMalformedToken without
// detail so callers cannot probe the format.
func DecodeToken(token string) (TokenID, [SecretSize]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != rawTokenSize {
		return TokenID{}, [SecretSize]byte{}, ErrMalformedToken
	}

	var id TokenID
	var secret [SecretSize]byte
	copy(id[:], raw[:TokenIDSize])
	copy(secret[:], raw[TokenIDSize:])
	return id, secret, nil
}

// NewOTP returns a uniformly random numeric code of the given length,
// zero-padded. Uses crypto/rand rejection-free sampling via math/big.
func NewOTP(digits int) (string, error) {
	if digits < 1 || digits > 10 {
		return "", errors.New("otp digits out of range")
	}

	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
