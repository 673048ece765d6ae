package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/viewbridge/pkg/middleware"
	"github.com/vango-dev/viewbridge/pkg/protocol"
	"github.com/vango-dev/viewbridge/pkg/render"
)

// Server is the render service. It owns the view layer and answers page and
// stream render requests on a Unix socket.
type Server struct {
	config   *Config
	views    render.ViewRenderer
	router   chi.Router
	registry *prometheus.Registry
	metrics  *middleware.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a render service over views. Unset config fields take their
// defaults; a nil config uses DefaultConfig.
func New(config *Config, views render.ViewRenderer) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	config.applyDefaults()

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		config:   config,
		views:    views,
		registry: registry,
		metrics: middleware.NewMetrics(
			middleware.WithNamespace(config.MetricsNamespace),
			middleware.WithRegistry(registry),
		),
		logger: slog.Default().With("component", "render-service"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.OpenTelemetry(
		middleware.WithTracerName(s.config.TracerName),
		middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics"
		}),
	))
	r.Use(s.metrics.Handler)
	r.Use(s.recoverer)

	r.Post(protocol.PathRender, s.handleRender)
	r.Post(protocol.PathRenderStream, s.handleRenderStream)
	r.Get(protocol.PathHealth, s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen binds the configured Unix socket. A stale socket file left by a
// previous process is removed; a live one yields ErrSocketInUse.
func (s *Server) Listen() (net.Listener, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	path := s.config.SocketPath

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	return net.Listen("unix", path)
}

// removeStaleSocket removes path if it is a socket nobody is accepting on.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ErrNotSocket
	}
	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err == nil {
		conn.Close()
		return ErrSocketInUse
	}
	return os.Remove(path)
}

// Serve accepts connections on ln until Shutdown is called. It returns nil
// after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.listener = ln
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("render service listening", "socket", ln.Addr().String(), "debug", s.config.Debug)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run listens on the configured socket and serves until SIGINT or SIGTERM,
// then shuts down gracefully.
func (s *Server) Run() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err

	case sig := <-shutdown:
		s.logger.Info("shutting down...", "signal", sig.String())
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the service and removes its socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	if ln, ok := ln.(*net.UnixListener); ok {
		path := ln.Addr().String()
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("socket cleanup failed", "socket", path, "error", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Config returns the service configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Registry returns the registry the service metrics are registered with.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}
