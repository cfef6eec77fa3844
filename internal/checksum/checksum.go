// Package checksum computes content hashes for vault files.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether data hashes to expected. The comparison is case
// insensitive and an empty expected value never matches.
func Matches(data []byte, expected string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Sum(data)), []byte(expected)) == 1
}
