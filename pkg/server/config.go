package server

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/viewbridge/pkg/render"
)

// Config holds configuration for the render service.
type Config struct {
	// SocketPath is the Unix socket the service listens on.
	SocketPath string

	// Debug appends error detail to 5xx response bodies. Production
	// responses carry a generic message only.
	Debug bool

	// Layout is the layout identifier every page is composed into.
	// Default: "Application".
	Layout string

	// Bootstrap describes the import map injected into page heads.
	Bootstrap render.Bootstrap

	// Concurrency bounds how many fragments of one stream batch render at
	// once. Default: GOMAXPROCS.
	Concurrency int

	// MaxBodyBytes limits the request body size.
	// Default: 8MB.
	MaxBodyBytes int64

	// Timeouts

	// ReadHeaderTimeout bounds reading a request head.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// IdleTimeout closes kept-alive connections that stay idle this long.
	// The client pool reaps its side sooner.
	// Default: 5 minutes.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Observability

	// Registry receives the service metrics. Nil creates a private
	// registry, served at /metrics.
	Registry *prometheus.Registry

	// MetricsNamespace prefixes every metric name.
	// Default: "viewbridge".
	MetricsNamespace string

	// TracerName names the otel tracer.
	// Default: "viewbridge".
	TracerName string
}

// DefaultLayout is the layout pages are composed into unless configured.
const DefaultLayout = "Application"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Layout:            DefaultLayout,
		Concurrency:       runtime.GOMAXPROCS(0),
		MaxBodyBytes:      8 << 20,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		MetricsNamespace:  "viewbridge",
		TracerName:        "viewbridge",
	}
}

// applyDefaults fills unset fields from DefaultConfig.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Layout == "" {
		c.Layout = defaults.Layout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = defaults.MetricsNamespace
	}
	if c.TracerName == "" {
		c.TracerName = defaults.TracerName
	}
}

// Validate checks the fields Run needs.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return ErrNoSocketPath
	}
	if len(c.SocketPath) > maxSocketPath {
		return fmt.Errorf("server: socket path longer than %d bytes: %s", maxSocketPath, c.SocketPath)
	}
	return nil
}

// maxSocketPath is the portable sun_path limit, less the terminating NUL.
const maxSocketPath = 103
