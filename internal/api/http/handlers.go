// Package http serves the proxy: the proxy-internal routes (task scripts,
// service messages, uploads), the proxy handler that forwards everything
// else to its destination, and the admin API that manages sessions.
package http

import (
	_ "embed"
	"net/http"
	"net/url"
	"time"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/upload"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sessionproxy/internal/providers/destination"
	"github.com/GriffinCanCode/sessionproxy/internal/providers/processing"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/urlcodec"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultClientScript is the client runtime served at /proxy-client.js when
// no script file is configured
//
//go:embed assets/proxy-client.js
var DefaultClientScript []byte

const (
	defaultMaxBodySize    = 32 << 20
	defaultMaxMessageSize = 16 << 20
)

// Deps are the collaborators of the handlers
type Deps struct {
	Sessions  *session.Registry
	Uploads   *upload.Storage // nil disables uploads
	Fetcher   *destination.Fetcher
	Processor processing.Processor
	Codec     urlcodec.Codec

	// Info is the main listener, used where no request names one
	Info types.ServerInfo

	// NewCapabilities returns the capabilities of a new session
	NewCapabilities func() session.Capabilities
	SessionIDLength int
	MaxBodySize     int64
	MaxMessageSize  int64

	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions        *session.Registry
	uploads         *upload.Storage
	fetcher         *destination.Fetcher
	processor       processing.Processor
	codec           urlcodec.Codec
	info            types.ServerInfo
	newCapabilities func() session.Capabilities
	sessionIDLength int
	maxBodySize     int64
	maxMessageSize  int64
	metrics         *monitoring.Metrics
	logger          *zap.Logger
	started         time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		sessions:        d.Sessions,
		uploads:         d.Uploads,
		fetcher:         d.Fetcher,
		processor:       d.Processor,
		codec:           d.Codec,
		info:            d.Info,
		newCapabilities: d.NewCapabilities,
		sessionIDLength: d.SessionIDLength,
		maxBodySize:     d.MaxBodySize,
		maxMessageSize:  d.MaxMessageSize,
		metrics:         d.Metrics,
		logger:          d.Logger,
		started:         time.Now(),
	}

	if h.sessions == nil {
		h.sessions = session.NewRegistry()
	}
	if h.fetcher == nil {
		h.fetcher = destination.New(destination.Options{Logger: d.Logger, Metrics: d.Metrics})
	}
	if h.processor == nil {
		h.processor = processing.NewInjector()
	}
	if h.codec == nil {
		h.codec = urlcodec.Default
	}
	if h.newCapabilities == nil {
		h.newCapabilities = func() session.Capabilities { return session.Unimplemented{} }
	}
	if h.maxBodySize <= 0 {
		h.maxBodySize = defaultMaxBodySize
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.metrics == nil {
		h.metrics = monitoring.NewMetrics()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.Named("http")

	return h
}

// Sessions returns the registry of open sessions
func (h *Handlers) Sessions() *session.Registry { return h.sessions }

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "session proxy",
		"domain":  h.info.Domain,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       h.sessions.Len(),
		"uptime_seconds": time.Since(h.started).Seconds(),
		"breakers":       h.fetcher.BreakerStates(),
	})
}

func parseURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

// writeJSON answers raw net/http handlers; gin handlers use c.JSON
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = sonic.Marshal(types.ErrorResponse{Error: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, types.ErrorResponse{Error: err.Error()})
}

func setNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}
