package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxIDLength   = 64
	MaxPathLength = 2048
)

// SafeIDPattern matches ids that can sit in a proxy URL segment. '!' is the
// flag separator and is excluded.
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid value")

// FieldError names the field that failed validation
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + " " + e.Reason }

func (e *FieldError) Unwrap() error { return ErrInvalid }

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateID checks a caller-chosen session id. An empty id passes unless
// required.
func ValidateID(id, field string, required bool) error {
	switch {
	case id == "" && required:
		return invalid(field, "is required")
	case id == "":
		return nil
	case len(id) > MaxIDLength:
		return invalid(field, "is longer than %d bytes", MaxIDLength)
	case !SafeIDPattern.MatchString(id):
		return invalid(field, "may only contain letters, digits, '-' and '_'")
	}
	return nil
}

// ValidateProxyPath checks a path the proxy serves itself, such as an
// injected script. It must be root-relative so the page resolves it against
// the proxy origin.
func ValidateProxyPath(path, field string) error {
	switch {
	case path == "":
		return invalid(field, "is required")
	case len(path) > MaxPathLength:
		return invalid(field, "is longer than %d bytes", MaxPathLength)
	case strings.ContainsRune(path, 0):
		return invalid(field, "contains a NUL byte")
	case path[0] != '/' || strings.HasPrefix(path, "//"):
		return invalid(field, "must be a root-relative path, got %q", path)
	}
	return nil
}

// ValidateProxyPaths checks every path, reporting the first failure as
// field[i]
func ValidateProxyPaths(paths []string, field string) error {
	for i, p := range paths {
		if err := ValidateProxyPath(p, fmt.Sprintf("%s[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}
