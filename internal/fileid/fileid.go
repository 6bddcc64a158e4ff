// Package fileid derives stable keys and content fingerprints for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "file:"

// SourceKey returns the key a file path is bound to in the sources table.
// Equivalent spellings of the same path yield the same key.
func SourceKey(path string) string {
	return prefix + filepath.ToSlash(filepath.Clean(path))
}

// Fingerprint returns a hex SHA-256 of data. Re-ingesting a file whose fingerprint
// is unchanged is skipped.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
