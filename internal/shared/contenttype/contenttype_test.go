package contenttype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPage(t *testing.T) {
	assert.True(t, IsPage("text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"))
	assert.True(t, IsPage("application/xhtml+xml"))
	assert.True(t, IsPage("TEXT/HTML"))
	assert.False(t, IsPage("*/*"))
	assert.False(t, IsPage("text/css,*/*;q=0.1"))
	assert.False(t, IsPage(""))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		accept      string
		css         bool
		script      bool
		manifest    bool
		json        bool
	}{
		{"css", "text/css; charset=utf-8", "", true, false, false, false},
		{"css by accept", "", "text/css", true, false, false, false},
		{"javascript", "application/javascript", "", false, true, false, false},
		{"legacy javascript with params", "text/x-javascript; charset=windows-1251", "", false, true, false, false},
		{"script by accept", "", "application/javascript", false, true, false, false},
		{"manifest", "text/cache-manifest", "", false, false, true, false},
		{"json", "application/json; charset=utf-8", "", false, false, false, true},
		{"html", "text/html", "text/html", false, false, false, false},
		{"image", "image/png", "*/*", false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.css, IsCSSResource(tt.contentType, tt.accept))
			assert.Equal(t, tt.script, IsScriptResource(tt.contentType, tt.accept))
			assert.Equal(t, tt.manifest, IsManifest(tt.contentType))
			assert.Equal(t, tt.json, IsJSON(tt.contentType))
		})
	}
}

func TestMediaTypeAndCharset(t *testing.T) {
	assert.Equal(t, "text/html", MediaType("Text/HTML; charset=UTF-8"))
	assert.Equal(t, "text/html", MediaType("text/html; charset"))
	assert.Equal(t, "UTF-8", CharsetParam("text/html; charset=UTF-8"))
	assert.Equal(t, "windows-1251", CharsetParam(`text/css; charset="windows-1251"`))
	assert.Equal(t, "", CharsetParam("text/css"))
	assert.Equal(t, "", CharsetParam(""))
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("  image/svg+xml"))
	assert.False(t, IsImage("text/html"))
	assert.False(t, IsImage(""))
}
