// Package utils holds small helpers shared across the proxy: entity tags for
// static content and validation of admin API input.
package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// ETag returns a strong entity tag for content. MD5 only fingerprints the
// bytes here; nothing relies on it for security.
func ETag(content []byte) string {
	sum := md5.Sum(content)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// MatchesETag reports whether an If-None-Match header value names etag.
// The header may list several tags, weak tags, or be "*".
func MatchesETag(ifNoneMatch, etag string) bool {
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
