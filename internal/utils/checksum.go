package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// PathFingerprint returns the first n hex characters of the MD5 of a path
// string. File content is not hashed.
func PathFingerprint(path string, n int) string {
	sum := md5.Sum([]byte(path))
	digest := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}
