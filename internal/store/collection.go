package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxCollectionNameLength bounds a derived collection name (§6 "Collection
// naming"): deterministic from repository path, special characters
// stripped, truncated with a trailing hash segment to disambiguate.
const maxCollectionNameLength = 83

// CollectionNameFor derives a stable vector-store collection name from a
// repository's root path: identical paths always produce identical names,
// special characters are replaced with '-', and a hash segment of the full
// path is appended so two paths that truncate to the same prefix never
// collide.
func CollectionNameFor(repoPath string) string {
	sum := sha256.Sum256([]byte(repoPath))
	suffix := "-" + hex.EncodeToString(sum[:])[:8]

	sanitized := sanitizeCollectionName(repoPath)
	maxPrefix := maxCollectionNameLength - len(suffix)
	if len(sanitized) > maxPrefix {
		sanitized = sanitized[:maxPrefix]
	}
	return sanitized + suffix
}

func sanitizeCollectionName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
