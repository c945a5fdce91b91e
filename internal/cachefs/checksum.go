package cachefs

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
)

// ComputeChecksum computes a SHA256 checksum for the given data
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// ETag returns a strong entity tag for the named file of fsys, derived
// from its contents. Directories have no tag.
func ETag(fsys fs.FS, name string) (string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", err
	}
	return `"` + ComputeChecksum(data) + `"`, nil
}
