package entity

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveID computes the deterministic entity identifier from
// (repositoryID, filePath, qualifiedName), per §3: reproducible across
// re-indexings of identical inputs.
func DeriveID(repositoryID, filePath, qualifiedName string) string {
	h := sha256.New()
	h.Write([]byte(repositoryID))
	h.Write([]byte{0})
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(qualifiedName))
	return hex.EncodeToString(h.Sum(nil))
}

// HashContent returns the content hash used for change detection in file
// snapshots and entity re-embedding decisions.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
