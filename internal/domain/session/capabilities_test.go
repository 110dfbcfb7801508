package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchange struct {
	req    *http.Request
	dest   string
	status int
	body   string
}

func (f *fakeExchange) Request() *http.Request { return f.req }
func (f *fakeExchange) DestinationURL() string { return f.dest }
func (f *fakeExchange) CloseWithError(status int, body string) {
	f.status = status
	f.body = body
}

func TestUnimplemented(t *testing.T) {
	var caps Capabilities = Unimplemented{}

	_, err := caps.PayloadScript()
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = caps.IframePayloadScript()
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorIs(t, caps.HandleFileDownload(&fakeExchange{}), ErrNotImplemented)
	assert.ErrorIs(t, caps.HandlePageError(&fakeExchange{}, "boom"), ErrNotImplemented)
	_, err = caps.AuthCredentials()
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestDeployment(t *testing.T) {
	downloads := 0
	d := NewDeployment(DeploymentConfig{
		PayloadScript:       "page();",
		IframePayloadScript: "frame();",
		Credentials:         &Credentials{Username: "user", Password: "secret"},
		OnFileDownload:      func(Exchange) { downloads++ },
	}, nil)

	script, err := d.PayloadScript()
	require.NoError(t, err)
	assert.Equal(t, "page();", script)

	script, err = d.IframePayloadScript()
	require.NoError(t, err)
	assert.Equal(t, "frame();", script)

	creds, err := d.AuthCredentials()
	require.NoError(t, err)
	assert.Equal(t, "user", creds.Username)

	ex := &fakeExchange{req: httptest.NewRequest(http.MethodGet, "/", nil), dest: "https://example.com/report.pdf"}
	require.NoError(t, d.HandleFileDownload(ex))
	assert.Equal(t, 1, downloads)
}

func TestDeploymentWithoutCredentials(t *testing.T) {
	d := NewDeployment(DeploymentConfig{}, nil)
	_, err := d.AuthCredentials()
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.NoError(t, d.HandleFileDownload(&fakeExchange{}))
}

func TestDeploymentPageErrorIsSanitised(t *testing.T) {
	d := NewDeployment(DeploymentConfig{}, nil)
	ex := &fakeExchange{dest: `https://example.com/<script>alert(1)</script>`}

	require.NoError(t, d.HandlePageError(ex, `dial tcp: <img src=x onerror=alert(1)> refused`))

	assert.Equal(t, http.StatusBadGateway, ex.status)
	assert.Contains(t, ex.body, "Failed to load the page")
	assert.NotContains(t, ex.body, "<script>")
	assert.NotContains(t, ex.body, "<img")
	assert.Contains(t, ex.body, "refused")
}
