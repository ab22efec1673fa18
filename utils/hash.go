package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentFingerprint returns the document identity for raw uploaded bytes:
// a fixed-length hex SHA-256 digest. Identical bytes always produce identical
// identity, which is what makes upload-time deduplication possible.
func ContentFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
