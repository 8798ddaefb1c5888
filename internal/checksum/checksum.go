// Package checksum provides content hashing helpers.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Sum returns the hex-encoded SHA-256 digest of data. Used for note
// content checksums and optimistic-concurrency ETags.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns a fast order-independent digest of path→checksum
// pairs, identifying a corpus state as a whole. Two corpora with the same
// files and contents always produce the same fingerprint.
func Fingerprint(checksums map[string]string) string {
	paths := make([]string, 0, len(checksums))
	for p := range checksums {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	d := xxhash.New()
	for _, p := range paths {
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(checksums[p])
		_, _ = d.WriteString("\x00")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
