package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	applogger "ModelHub/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler mounts a group of routes.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// HealthFunc reports whether a backing dependency is usable.
type HealthFunc func(ctx context.Context) error

// ServerOption configures Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	host            string
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	slowThreshold   time.Duration
	bodyLimit       string
	metricsPath     string
	log             *applogger.Logger
	health          map[string]HealthFunc
}

// Server is the echo instance plus its listener lifecycle.
type Server struct {
	echo   *echo.Echo
	config *serverConfig
	log    *applogger.Logger
	ln     net.Listener
}

// NewServer mounts handlers behind recovery, metrics and CORS, and adds
// /healthz plus the Prometheus endpoint. Nil handlers are skipped.
func NewServer(handlers []Handler, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		host:            "0.0.0.0",
		port:            8080,
		readTimeout:     30 * time.Second,
		writeTimeout:    5 * time.Minute, // a SEQUENCE fit can take minutes
		shutdownTimeout: 10 * time.Second,
		slowThreshold:   2 * time.Second,
		bodyLimit:       "32M",
		metricsPath:     "/metrics",
		health:          make(map[string]HealthFunc),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = applogger.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.readTimeout
	e.Server.WriteTimeout = cfg.writeTimeout

	e.Use(observeRequests(cfg.log, cfg.slowThreshold))
	e.Use(recoverPanics(cfg.log))
	if cfg.bodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.bodyLimit))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
	e.GET("/healthz", healthz(cfg.health))
	if cfg.metricsPath != "" {
		e.GET(cfg.metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{echo: e, config: cfg, log: cfg.log}
}

// healthz answers 200 when every check passes, 503 otherwise, with one entry per check.
func healthz(checks map[string]HealthFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		report := make(map[string]string, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			report[name] = "ok"
			if err := check(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		return DataResponse(c, status, report)
	}
}

// Start binds the listener before returning, so a busy port fails here
// rather than in the serving goroutine.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.host, strconv.Itoa(s.config.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.echo.Listener = ln

	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
		}
	}()
	s.log.Info("http server listening", applogger.String("addr", ln.Addr().String()))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Addr is the bound address once Start has returned, or "".
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ShutdownTimeout is how long Stop callers should allow for draining.
func (s *Server) ShutdownTimeout() time.Duration {
	return s.config.shutdownTimeout
}

// WithListen sets the bind address; port 0 picks a free port.
func WithListen(host string, port int) ServerOption {
	return func(c *serverConfig) {
		c.host = host
		c.port = port
	}
}

// WithTimeouts sets read, write and shutdown timeouts. Zero keeps the default.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *serverConfig) {
		if read > 0 {
			c.readTimeout = read
		}
		if write > 0 {
			c.writeTimeout = write
		}
		if shutdown > 0 {
			c.shutdownTimeout = shutdown
		}
	}
}

// WithLogger sets the request and panic logger.
func WithLogger(l *applogger.Logger) ServerOption {
	return func(c *serverConfig) { c.log = l }
}

// WithBodyLimit caps request bodies in echo's notation, e.g. "32M". Empty disables the cap.
func WithBodyLimit(limit string) ServerOption {
	return func(c *serverConfig) { c.bodyLimit = limit }
}

// WithSlowThreshold logs requests slower than d at warn level.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.slowThreshold = d }
}

// WithMetricsPath moves the Prometheus endpoint; empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(c *serverConfig) { c.metricsPath = path }
}

// WithHealthCheck adds a named check to /healthz.
func WithHealthCheck(name string, fn HealthFunc) ServerOption {
	return func(c *serverConfig) {
		if fn != nil {
			c.health[name] = fn
		}
	}
}
