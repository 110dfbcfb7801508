package processing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/pipeline"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInfo = types.NewServerInfo("localhost", 1337, 1338)

type lookup map[string]*session.Session

func (l lookup) Get(id string) (*session.Session, bool) {
	s, ok := l[id]
	return s, ok
}

func newContext(t *testing.T, target, accept, contentType string) *pipeline.Context {
	t.Helper()

	s := session.New(session.Options{
		ID: "sess01",
		Injectable: &session.Injectable{
			Scripts: session.DefaultScripts,
			Styles:  []string{"/ui.css"},
		},
	})

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept", accept)
	ctx := pipeline.New(httptest.NewRecorder(), req, testInfo, nil)
	require.True(t, ctx.Dispatch(lookup{"sess01": s}))

	ctx.DestRes = &http.Response{StatusCode: http.StatusOK, Header: http.Header{"Content-Type": {contentType}}}
	require.NoError(t, ctx.BuildContentInfo())
	return ctx
}

func TestInjectorPages(t *testing.T) {
	const tags = `<link rel="stylesheet" type="text/css" class="proxy-stylesheet" href="http://localhost:1337/ui.css">` +
		`<script type="text/javascript" class="proxy-script" charset="UTF-8" src="http://localhost:1337/proxy-client.js"></script>` +
		`<script type="text/javascript" class="proxy-script" charset="UTF-8" src="http://localhost:1337/task.js"></script>`

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "after head",
			in:   `<!DOCTYPE html><html><head><title>t</title></head><body></body></html>`,
			want: `<!DOCTYPE html><html><head>` + tags + `<title>t</title></head><body></body></html>`,
		},
		{
			name: "head with attributes",
			in:   "<html lang=\"en\">\n<HEAD profile=\"x\">\n<meta charset=\"utf-8\"></HEAD></html>",
			want: "<html lang=\"en\">\n<HEAD profile=\"x\">" + tags + "\n<meta charset=\"utf-8\"></HEAD></html>",
		},
		{
			name: "no head",
			in:   "<!-- c --><html>\n<body>hi</body></html>",
			want: "<!-- c --><html>\n" + tags + "<body>hi</body></html>",
		},
		{
			name: "fragment",
			in:   "<div>x</div>",
			want: tags + "<div>x</div>",
		},
		{
			name: "empty",
			in:   "",
			want: tags,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t, "/sess01/http://example.com/", "text/html,*/*;q=0.8", "text/html")
			got, err := NewInjector().Process(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInjectorIframeUsesIframeTask(t *testing.T) {
	ctx := newContext(t, "/sess01!i/http://example.com/frame.html", "text/html", "text/html")
	got, err := NewInjector().Process(ctx, "<head></head>")
	require.NoError(t, err)
	assert.True(t, strings.Contains(got, "http://localhost:1337/iframe-task.js"))
	assert.False(t, strings.Contains(got, "/task.js\""))
}

func TestInjectorLeavesOtherResources(t *testing.T) {
	tests := []struct {
		target, accept, contentType, kind string
	}{
		{"/sess01/http://example.com/a.css", "text/css", "text/css", "stylesheet"},
		{"/sess01!s/http://example.com/a.js", "*/*", "application/javascript", "script"},
		{"/sess01/http://example.com/a.json", "*/*", "application/json", "json"},
		{"/sess01/http://example.com/cache.manifest", "*/*", "text/cache-manifest", "manifest"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			ctx := newContext(t, tt.target, tt.accept, tt.contentType)
			assert.Equal(t, tt.kind, Kind(ctx))

			got, err := NewInjector().Process(ctx, "<head></head>")
			require.NoError(t, err)
			assert.Equal(t, "<head></head>", got)
		})
	}
}

func TestPassthroughAndFunc(t *testing.T) {
	ctx := newContext(t, "/sess01/http://example.com/", "text/html", "text/html")

	got, err := Passthrough.Process(ctx, "<p>x</p>")
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", got)

	failing := ProcessorFunc(func(*pipeline.Context, string) (string, error) { return "", errors.New("boom") })
	_, err = failing.Process(ctx, "")
	assert.Error(t, err)

	assert.Equal(t, "unknown", Kind(&pipeline.Context{}))
}
