package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		required bool
		wantErr  string
	}{
		{"empty optional", "", false, ""},
		{"empty required", "", true, "id is required"},
		{"token", "a1b2c3", true, ""},
		{"dashes and underscores", "run_1-a", true, ""},
		{"flag separator", "a!i", true, "may only contain"},
		{"slash", "a/b", true, "may only contain"},
		{"too long", strings.Repeat("a", MaxIDLength+1), true, "longer than 64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id, "id", tt.required)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidateProxyPaths(t *testing.T) {
	assert.NoError(t, ValidateProxyPaths([]string{"/a.js", "/static/b.css"}, "scripts"))
	assert.NoError(t, ValidateProxyPaths(nil, "scripts"))

	err := ValidateProxyPaths([]string{"/a.js", "https://cdn.example.com/b.js"}, "scripts")
	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "scripts[1]", fieldErr.Field)

	for _, bad := range []string{"", "//cdn.example.com/b.js", "a.js", "/a\x00.js", "/" + strings.Repeat("a", MaxPathLength)} {
		assert.ErrorIs(t, ValidateProxyPath(bad, "style"), ErrInvalid, bad)
	}
}
