package state

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"alerteval/internal/domain"
)

// GroupDigest hashes one group key into a fixed-width key-safe token.
// Params: canonical group key (may be the synthetic empty group).
// Returns: sha1 hex digest usable inside KV keys.
func GroupDigest(group domain.GroupKey) string {
	digest := sha1.Sum([]byte(group))
	var encoded [sha1.Size * 2]byte
	hex.Encode(encoded[:], digest[:])
	return string(encoded[:])
}

// keyToken converts an alert id into a stable key-safe token.
// Params: raw alert id with possible separators.
// Returns: lower-cased token with unsupported chars replaced by underscore.
func keyToken(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
