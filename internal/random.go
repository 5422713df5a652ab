package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	minOTPDigits = 4
	maxOTPDigits = 10
)

// NewOTP returns a numeric code of exactly digits characters drawn from crypto/rand.
// Each digit is sampled uniformly; leading zeros are preserved.
func NewOTP(digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashSecret returns the SHA-256 digest of a bearer secret (OTP code or raw token).
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// HashSecretHex returns the lowercase hex form of [HashSecret]; used in store keys.
func HashSecretHex(secret string) string {
	sum := HashSecret(secret)
	return hex.EncodeToString(sum[:])
}

// IsNumeric reports whether s is non-empty and contains only ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
