package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// FileHash returns the hex SHA-256 digest of a file's contents.
//
// Asset keys are content-addressed with this digest, both for hosted asset
// URLs and for upload deduplication.
//
// Parameters:
//   - path: The file to hash
//
// Returns:
//   - string: The hex digest
//   - error: Any error that occurred reading the file
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
