package authgate

import (
	"testing"
	"time"
)

// Vectors from RFC 6238 appendix B (SHA-1, 8 digits, 30 second period).
func TestHotpCodeRFC6238Vectors(t *testing.T) {
	secret := []byte("12345678901234567890")

	cases := []struct {
		unix int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}

	for _, tc := range cases {
		counter := tc.unix / 30
		got, err := hotpCode(secret, counter, 8, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode(t=%d) failed: %v", tc.unix, err)
		}
		if got != tc.want {
			t.Errorf("hotpCode(t=%d) = %s, want %s", tc.unix, got, tc.want)
		}
	}
}

func TestVerifyCodeSkewWindow(t *testing.T) {
	secret := []byte("12345678901234567890")
	manager := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1, Algorithm: "SHA1"})
	now := time.Unix(1111111111, 0)

	currentCounter := now.Unix() / 30
	for _, offset := range []int64{-1, 0, 1} {
		code, err := hotpCode(secret, currentCounter+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		ok, counter, err := manager.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if !ok {
			t.Errorf("code at offset %d rejected", offset)
		}
		if counter != currentCounter+offset {
			t.Errorf("offset %d: matched counter %d, want %d", offset, counter, currentCounter+offset)
		}
	}

	// Two periods out is beyond the window.
	code, err := hotpCode(secret, currentCounter+2, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	if ok, _, _ := manager.VerifyCode(secret, code, now); ok {
		t.Error("code two periods ahead accepted")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	secret := []byte("12345678901234567890")
	manager := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1, Algorithm: "SHA1"})
	now := time.Unix(1111111111, 0)

	for _, code := range []string{"", "12345", "1234567", "12345a", "  1234"} {
		if ok, _, err := manager.VerifyCode(secret, code, now); err != nil || ok {
			t.Errorf("VerifyCode(%q) = %v, %v; want false, nil", code, ok, err)
		}
	}
}
