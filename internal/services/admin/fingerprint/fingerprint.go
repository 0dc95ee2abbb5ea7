// Package fingerprint derives stable digests binding an approval to one
// specific mutation. The digest covers method, canonical path, and body so a
// grant issued for one request cannot be replayed against another.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Compute returns the hex digest for one mutating request.
func Compute(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(strings.TrimSpace(method))))
	h.Write([]byte{'\n'})
	h.Write([]byte(canonicalPath(path)))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalPath strips the query string and any trailing slash so equivalent
// spellings of one route hash identically.
func canonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	path = strings.TrimSpace(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}
