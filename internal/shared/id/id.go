// Package id generates the identifiers the proxy hands out: short session
// tokens that live in every proxy URL, and prefixed ULIDs for traces and
// spans that sort by creation time in logs.
package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	TracePrefix = "req"
	SpanPrefix  = "span"

	DefaultSessionLength = 6
	MaxSessionLength     = 32
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func prefixed(prefix string, at time.Time) string {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(at), entropy)
	entropyMu.Unlock()
	return prefix + "_" + u.String()
}

// Trace returns a new trace id, "req_" followed by a ULID
func Trace() string { return prefixed(TracePrefix, time.Now()) }

// Span returns a new span id, "span_" followed by a ULID
func Span() string { return prefixed(SpanPrefix, time.Now()) }

// Session returns a lowercase hex session token of the given length cut
// from a random UUID. Lengths outside [1, MaxSessionLength] use
// DefaultSessionLength.
func Session(length int) string {
	if length <= 0 || length > MaxSessionLength {
		length = DefaultSessionLength
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:length]
}

// CreatedAt returns the time embedded in a trace or span id
func CreatedAt(s string) (time.Time, bool) {
	_, raw, ok := strings.Cut(s, "_")
	if !ok {
		return time.Time{}, false
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
