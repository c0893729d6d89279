package bridge

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// NewToken returns a fresh 32-byte random session token, hex-encoded.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidToken reports whether provided matches expected, in constant time.
func ValidToken(provided string, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// tokenPrefix is the loggable part of a token.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "…"
	}
	return token[:8] + "…"
}
