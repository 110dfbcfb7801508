package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestETag(t *testing.T) {
	etag := ETag([]byte("abc"))

	assert.Equal(t, `"900150983cd24fb0d6963f7d28e17f72"`, etag)
	assert.Equal(t, etag, ETag([]byte("abc")))
	assert.NotEqual(t, etag, ETag([]byte("abd")))
}

func TestMatchesETag(t *testing.T) {
	etag := ETag([]byte("abc"))

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"exact", etag, true},
		{"weak", "W/" + etag, true},
		{"list", `"other", ` + etag, true},
		{"wildcard", "*", true},
		{"other tag", `"other"`, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesETag(tt.header, etag))
		})
	}
}
