package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// GenerateCode returns a numeric OTP string of the given length (e.g. "041526"),
// zero-padded. Uses crypto/rand for randomness.
func GenerateCode(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, length)
	for i := 0; i < length; i++ {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

// HashCode returns a keyed hash of the code bound to its destination, hex-encoded.
// Binding the destination means the same code sent to two numbers hashes differently.
func HashCode(secret, destination, code string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(destination))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// CodeEqual performs constant-time comparison of the submitted code's hash with the stored hash.
func CodeEqual(secret, destination, submitted, storedHash string) bool {
	computed := HashCode(secret, destination, submitted)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// validCodeFormat reports whether s is exactly length ASCII digits.
func validCodeFormat(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
