package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken derives the fixed-length cache and storage key for a token
// string. Raw token values are never persisted or logged.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short prefix of the token hash, safe to log.
func Fingerprint(token string) string {
	h := HashToken(token)
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
