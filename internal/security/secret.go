package security

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecretEqual compares a provided secret with the configured one in constant time.
// Both sides are hashed first so the comparison does not leak the configured length.
// An empty configured secret never matches.
func SecretEqual(provided, configured string) bool {
	if configured == "" {
		return false
	}
	p := sha256.Sum256([]byte(provided))
	c := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(p[:], c[:]) == 1
}
