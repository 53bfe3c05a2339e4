package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// hashToken returns the SHA-256 hex digest stored in the revocation cache.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// tokenMatches compares a presented token with a stored digest in constant time.
func tokenMatches(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(storedHash)) == 1
}
