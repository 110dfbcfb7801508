package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/sessionproxy/internal/api/http"
	"github.com/GriffinCanCode/sessionproxy/internal/api/middleware"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/router"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/upload"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/config"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sessionproxy/internal/providers/destination"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
)

// Server runs the proxy on its main and cross-domain listeners
type Server struct {
	main     *http.Server
	cross    *http.Server
	handlers *apihttp.Handlers
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config
	info     types.ServerInfo
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	info := types.NewServerInfo(cfg.Server.Hostname, cfg.Server.Port, cfg.Server.CrossDomainPort)
	logger.Info("Initializing session proxy",
		zap.String("domain", info.Domain),
		zap.Int("cross_domain_port", info.CrossDomainPort),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("proxy", logger.Logger)

	caps, err := deploymentCapabilities(cfg.Proxy, metrics, logger.ForComponent("capabilities"))
	if err != nil {
		return nil, err
	}

	clientScript, err := readOptional(cfg.Proxy.ClientScriptFile)
	if err != nil {
		return nil, fmt.Errorf("client script: %w", err)
	}

	var uploads *upload.Storage
	if cfg.Proxy.UploadsRoot != "" {
		uploads = upload.NewStorage(cfg.Proxy.UploadsRoot)
	}

	fetchOpts := destination.OptionsFromConfig(cfg.Destination)
	fetchOpts.Logger = logger.Logger
	fetchOpts.Metrics = metrics

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Uploads:         uploads,
		Fetcher:         destination.New(fetchOpts),
		Info:            info,
		NewCapabilities: func() session.Capabilities { return caps },
		SessionIDLength: cfg.Proxy.SessionIDLength,
		MaxBodySize:     cfg.Destination.MaxBodySize,
		MaxMessageSize:  cfg.Proxy.MaxMessageSize,
		Metrics:         metrics,
		Logger:          logger.Logger,
	})

	internal := router.New(nil)
	handlers.RegisterRoutes(internal, clientScript)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		handlers: handlers,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		info:     info,
	}

	mainEngine := s.engine(internal, info)
	s.registerAdmin(mainEngine)

	crossInfo := info.CrossDomain()
	s.main = s.httpServer(cfg.Server.Host, info.Port, mainEngine)
	s.cross = s.httpServer(cfg.Server.Host, crossInfo.Port, s.engine(internal, crossInfo))

	logger.Info("Server initialized successfully")
	return s, nil
}

// engine builds the gin engine of one listener. Requests no route matches
// go to the proxy-internal router, then to the proxy handler.
func (s *Server) engine(internal *router.Router, info types.ServerInfo) *gin.Engine {
	engine := gin.New()
	// Proxy URLs embed whole destination URLs, so paths are never rewritten
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	engine.Use(gin.Recovery())
	engine.Use(tracing.HTTPMiddleware(s.tracer))
	engine.Use(monitoring.Middleware(s.metrics))
	engine.Use(middleware.RequestLogger(s.logger.ForComponent("access")))

	engine.NoRoute(func(c *gin.Context) {
		if internal.Route(c.Writer, c.Request, info) {
			s.metrics.RecordDispatch(monitoring.DispatchRouted)
			return
		}
		s.handlers.Proxy(c.Writer, c.Request, info)
	})
	return engine
}

func (s *Server) registerAdmin(engine *gin.Engine) {
	admin := engine.Group(apihttp.AdminPrefix)
	admin.Use(middleware.AdminCORS(s.config.CORS.AllowOrigins))
	admin.Use(middleware.MaxBodySize(s.config.Proxy.MaxMessageSize))
	// Preflights carry no route of their own; CORS answers them
	admin.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if s.config.RateLimit.Enabled {
		s.logger.Info("Admin rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rl.Burst = s.config.RateLimit.Burst
		admin.Use(middleware.RateLimit(rl))
	}

	s.handlers.RegisterAdmin(admin)
}

func (s *Server) httpServer(host string, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:  handler,
		ErrorLog: zap.NewStdLog(s.logger.ForComponent("http")),
	}
}

// Handler returns the main listener's handler
func (s *Server) Handler() http.Handler { return s.main.Handler }

// CrossDomainHandler returns the cross-domain listener's handler
func (s *Server) CrossDomainHandler() http.Handler { return s.cross.Handler }

// Info returns the main listener's server info
func (s *Server) Info() types.ServerInfo { return s.info }

// Run serves both listeners until ctx is done, then shuts them down
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range []*http.Server{s.main, s.cross} {
		g.Go(func() error {
			s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()

	s.logger.Info("Shutting down", zap.Int("open_sessions", s.handlers.Sessions().Len()))

	var errs []error
	for _, srv := range []*http.Server{s.main, s.cross} {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}

	for _, sess := range s.handlers.Sessions().List() {
		if err := sess.Close(); err != nil {
			s.logger.Warn("Failed to release session", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}

	s.tracer.Close()
	return errors.Join(errs...)
}

// deploymentCapabilities builds the capabilities shared by every session
func deploymentCapabilities(cfg config.ProxyConfig, metrics *monitoring.Metrics, logger *zap.Logger) (*session.Deployment, error) {
	payload, err := readOptional(cfg.PayloadScriptFile)
	if err != nil {
		return nil, fmt.Errorf("payload script: %w", err)
	}
	iframePayload, err := readOptional(cfg.IframePayloadFile)
	if err != nil {
		return nil, fmt.Errorf("iframe payload script: %w", err)
	}

	var creds *session.Credentials
	if cfg.AuthUsername != "" {
		creds = &session.Credentials{Username: cfg.AuthUsername, Password: cfg.AuthPassword}
	}

	return session.NewDeployment(session.DeploymentConfig{
		PayloadScript:       string(payload),
		IframePayloadScript: string(iframePayload),
		Credentials:         creds,
		OnFileDownload:      func(session.Exchange) { metrics.IncFileDownloads() },
	}, logger), nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}
