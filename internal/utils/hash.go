package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshRaw returns the SHA-256 hash of a raw refresh token as a hex
// string. Only the hash is persisted, so stolen session rows cannot be used
// to refresh access tokens.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
