package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/urlcodec"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminPrefix is the path every admin route lives under
const AdminPrefix = "/_admin"

// RegisterAdmin mounts the admin API on g
func (h *Handlers) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/health", h.Health)
	g.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	g.GET("/metrics/json", h.MetricsJSON)

	sessions := g.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("", h.ListSessions)
	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.CloseSession)
	sessions.POST("/:id/proxy-url", h.ProxyURL)
	sessions.GET("/:id/uploads", h.ListUploads)
}

// CreateSession opens a session
func (h *Handlers) CreateSession(c *gin.Context) {
	var req types.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
			return
		}
	}

	if err := validateCreateSession(req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	opts := session.Options{
		ID:           req.ID,
		IDLength:     h.sessionIDLength,
		Uploads:      h.uploads,
		Capabilities: h.newCapabilities(),
		Codec:        h.codec,
		Logger:       h.logger,
	}
	if len(req.Scripts) > 0 || len(req.Styles) > 0 {
		opts.Injectable = &session.Injectable{
			Scripts: append(append([]string{}, session.DefaultScripts...), req.Scripts...),
			Styles:  req.Styles,
		}
	}

	s := session.New(opts)
	if err := h.sessions.Add(s); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionExists) {
			status = http.StatusConflict
		}
		c.JSON(status, types.ErrorResponse{Error: err.Error()})
		return
	}
	h.metrics.SessionOpened()

	h.logger.Info("Session opened", zap.String("session_id", s.ID()))
	c.JSON(http.StatusCreated, s.Snapshot())
}

func validateCreateSession(req types.CreateSessionRequest) error {
	if err := utils.ValidateID(req.ID, "id", false); err != nil {
		return err
	}
	if err := utils.ValidateProxyPaths(req.Scripts, "scripts"); err != nil {
		return err
	}
	return utils.ValidateProxyPaths(req.Styles, "styles")
}

// ListSessions lists the open sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	list := h.sessions.List()
	snapshots := make([]session.Snapshot, 0, len(list))
	for _, s := range list {
		snapshots = append(snapshots, s.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": snapshots,
		"count":    len(snapshots),
	})
}

// GetSession describes one session
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// CloseSession closes a session and drops its uploads
func (h *Handlers) CloseSession(c *gin.Context) {
	id := c.Param("id")
	s, ok := h.sessions.Remove(id)
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "session not found"})
		return
	}
	h.metrics.SessionClosed()

	if err := s.Close(); err != nil {
		h.logger.Warn("Failed to release session uploads",
			zap.String("session_id", id),
			zap.Error(err))
	}

	h.logger.Info("Session closed", zap.String("session_id", id))
	c.Status(http.StatusNoContent)
}

// ProxyURL returns the proxy URL of a destination for a session
func (h *Handlers) ProxyURL(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req types.ProxyURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	resourceType := urlcodec.ResourceType(req.ResourceType)
	switch resourceType {
	case urlcodec.ResourceNone, urlcodec.ResourceIframe, urlcodec.ResourceScript:
	default:
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "unknown resource type"})
		return
	}

	if _, ok := urlcodec.ParseDestination(req.URL); !ok {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "url must be an absolute http(s) url"})
		return
	}

	port := h.info.Port
	if req.CrossDomain {
		port = h.info.CrossDomainPort
	}
	proxyURL := h.codec.Encode(req.URL, h.info.Hostname, port, s.ID(), resourceType, req.Charset)

	c.JSON(http.StatusOK, gin.H{"url": proxyURL})
}

// ListUploads lists a session's uploaded files matching ?pattern=
func (h *Handlers) ListUploads(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if s.Uploads() == nil {
		c.JSON(http.StatusNotImplemented, types.ErrorResponse{Error: "uploads are disabled"})
		return
	}

	files, err := s.Uploads().List(s.ID(), c.Query("pattern"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// MetricsJSON returns the metric snapshot and breaker states
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":  h.metrics.Snapshot(),
		"breakers": h.fetcher.BreakerStates(),
	})
}

func (h *Handlers) lookup(c *gin.Context) (*session.Session, bool) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "session not found"})
	}
	return s, ok
}
