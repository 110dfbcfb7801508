package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Message
	}{
		{
			name: "set cookie",
			body: `{"cmd":"setCookie","sessionId":"abc","url":"https://example.com/","cookie":"a=1"}`,
			want: SetCookie{URL: "https://example.com/", Cookie: "a=1"},
		},
		{
			name: "iframe task script",
			body: `{"cmd":"getIframeTaskScript","sessionId":"abc","referer":"http://localhost:1337/abc/https://example.com/"}`,
			want: GetIframeTaskScript{Referer: "http://localhost:1337/abc/https://example.com/"},
		},
		{
			name: "upload files",
			body: `{"cmd":"uploadFiles","sessionId":"abc","fileNames":["a.txt"],"data":["YQ=="]}`,
			want: UploadFiles{FileNames: []string{"a.txt"}, Data: []string{"YQ=="}},
		},
		{
			name: "get uploaded files",
			body: `{"cmd":"getUploadedFiles","sessionId":"abc","filePaths":["a.txt","b.txt"]}`,
			want: GetUploadedFiles{FilePaths: []string{"a.txt", "b.txt"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
			assert.Equal(t, tt.want.Command(), msg.Command())
			assert.Equal(t, "abc", PeekSessionID([]byte(tt.body)))
		})
	}
}

func TestParseMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `cmd=setCookie`},
		{"missing cmd", `{"sessionId":"abc"}`},
		{"cmd not a string", `{"cmd":42}`},
		{"unknown command", `{"cmd":"dropDatabase","sessionId":"abc"}`},
		{"wrong payload type", `{"cmd":"uploadFiles","fileNames":"a.txt"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestPeekSessionIDMissing(t *testing.T) {
	assert.Equal(t, "", PeekSessionID([]byte(`{"cmd":"setCookie"}`)))
	assert.Equal(t, "", PeekSessionID([]byte(`garbage`)))
}
