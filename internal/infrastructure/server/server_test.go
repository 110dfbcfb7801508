package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/config"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/monitoring"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Hostname = "127.0.0.1"
	cfg.Proxy.UploadsRoot = t.TempDir()
	cfg.Destination.RetryMax = 0
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.tracer.Close)
	return srv
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.CrossDomainPort = cfg.Server.Port

	_, err := NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestNewServerRequiresReadableScripts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Proxy.PayloadScriptFile = filepath.Join(t.TempDir(), "missing.js")

	_, err := NewServer(cfg, nil)
	assert.ErrorContains(t, err, "payload script")
}

func TestProxyFlow(t *testing.T) {
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			w.Header().Set("Content-Disposition", `attachment; filename="a.bin"`)
			_, _ = w.Write([]byte{1, 2, 3})
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html><head></head><body>ok</body></html>")
		}
	}))
	defer dest.Close()

	payload := filepath.Join(t.TempDir(), "payload.js")
	require.NoError(t, os.WriteFile(payload, []byte("window.fromPayload = true;"), 0o644))

	cfg := testConfig(t)
	cfg.Proxy.PayloadScriptFile = payload
	srv := newTestServer(t, cfg)
	main := srv.Handler()

	w := serve(main, httptest.NewRequest(http.MethodPost, "/_admin/sessions", strings.NewReader(`{"id":"run1"}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	page := "/run1/" + dest.URL + "/"
	req := httptest.NewRequest(http.MethodGet, page, nil)
	req.Header.Set("Accept", "text/html")
	w = serve(main, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://127.0.0.1:1337/task.js")
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	req = httptest.NewRequest(http.MethodGet, "/task.js", nil)
	req.Header.Set("Referer", "http://127.0.0.1:1337"+page)
	w = serve(main, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "window.fromPayload = true;")

	w = serve(main, httptest.NewRequest(http.MethodGet, "/run1/"+dest.URL+"/download", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.FileDownloads))

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.DispatchTotal.WithLabelValues(monitoring.DispatchRouted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.DispatchTotal.WithLabelValues(monitoring.DispatchProxied)))
}

func TestCrossDomainListener(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	cross := srv.CrossDomainHandler()

	w := serve(cross, httptest.NewRequest(http.MethodGet, session.ClientScriptPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// The admin API is only served on the main listener
	w = serve(cross, httptest.NewRequest(http.MethodGet, "/_admin/sessions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(srv.Handler(), httptest.NewRequest(http.MethodPost, "/_admin/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()

	w = serve(srv.Handler(), httptest.NewRequest(http.MethodPost, "/_admin/sessions/"+id+"/proxy-url",
		strings.NewReader(`{"url":"https://example.com/","crossDomain":true}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://127.0.0.1:1338/"+id+"/https://example.com/", gjson.Get(w.Body.String(), "url").String())
}

func TestAdminCORS(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORS.AllowOrigins = []string{"http://dashboard.local"}
	srv := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/_admin/sessions", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(srv.Handler(), req)

	assert.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.CrossDomainPort = freePort(t)
	srv := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.Info().Domain + "/_admin/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
