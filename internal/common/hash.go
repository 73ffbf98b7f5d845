package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex hashes input with SHA-256 and returns the lowercase hex digest.
// Receipt derivation and idempotency keys both build on this.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
