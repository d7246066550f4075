// Package checksum provides content-address helpers for stored payloads.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Ref builds a content-address reference for data: "<digest>.<ext>".
func Ref(data []byte, ext string) string {
	return Sum(data) + "." + strings.TrimPrefix(ext, ".")
}

// Stem returns the digest part of a reference ("abc123.json" -> "abc123").
func Stem(ref string) string {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ref[:i]
	}
	return ref
}
