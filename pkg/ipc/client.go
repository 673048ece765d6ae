package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/viewbridge/pkg/protocol"
	"github.com/vango-dev/viewbridge/pkg/wire"
)

// Client defaults.
const (
	DefaultDialTimeout = time.Second
	DefaultIOTimeout   = 30 * time.Second
	DefaultMaxAttempts = 2
)

// Config configures a Client.
type Config struct {
	// SocketPath is the render service socket. Required.
	SocketPath string

	// DialTimeout bounds each connection attempt (default: 1s).
	DialTimeout time.Duration

	// IOTimeout bounds one request/response exchange (default: 30s).
	IOTimeout time.Duration

	// IdleTimeout closes pooled connections idle longer than this.
	// Zero keeps them until they fail.
	IdleTimeout time.Duration

	// MaxAttempts bounds exchanges per call, first try included (default: 2).
	MaxAttempts int

	// Pool is a shared connection pool. If nil the client owns one and
	// closes it in Close.
	Pool *Pool

	// Metrics records client metrics. Nil disables them. One Metrics may be
	// shared by several clients; calling NewMetrics twice against the same
	// registry (the default registerer included) panics.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// TracerName is the OpenTelemetry tracer name (default: "viewbridge/ipc").
	TracerName string
}

// DefaultConfig returns a configuration with defaults for socketPath.
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath:  socketPath,
		DialTimeout: DefaultDialTimeout,
		IOTimeout:   DefaultIOTimeout,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// RenderedDocument is a successful render result.
type RenderedDocument struct {
	Body    string
	Headers map[string]string
}

// String returns the rendered body.
func (d *RenderedDocument) String() string {
	return d.Body
}

// Client sends render requests to the render service.
type Client struct {
	config  Config
	pool    *Pool
	owned   bool
	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(config Config) (*Client, error) {
	if config.SocketPath == "" {
		return nil, errors.New("ipc: socket path is required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.IOTimeout <= 0 {
		config.IOTimeout = DefaultIOTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.TracerName == "" {
		config.TracerName = "viewbridge/ipc"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ipc-client")

	c := &Client{
		config:  config,
		pool:    config.Pool,
		metrics: config.Metrics,
		logger:  logger,
		tracer:  otel.Tracer(config.TracerName),
	}
	if c.pool == nil {
		c.owned = true
		c.pool = NewPool(
			WithDialTimeout(config.DialTimeout),
			WithIdleTimeout(config.IdleTimeout),
			WithPoolLogger(logger),
			WithPoolMetrics(config.Metrics),
		)
	}
	return c, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(l *slog.Logger) {
	c.logger = l.With("component", "ipc-client")
}

// Pool returns the connection pool the client uses.
func (c *Client) Pool() *Pool {
	return c.pool
}

// Close closes the pool if the client owns it.
func (c *Client) Close() error {
	if c.owned {
		return c.pool.Close()
	}
	return nil
}

// RenderPage renders a full page document.
func (c *Client) RenderPage(ctx context.Context, page string, props protocol.Props) (*RenderedDocument, error) {
	req := protocol.PageRenderRequest{Page: page, Props: props}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	body, err := protocol.EncodePageRequest(req)
	if err != nil {
		return nil, validationError(err)
	}
	return c.render(ctx, "Render", protocol.PathRender, body,
		attribute.String("viewbridge.page", page))
}

// RenderStream renders an ordered batch of patch operations. The operations
// are validated before anything is sent.
func (c *Client) RenderStream(ctx context.Context, ops []protocol.PatchOperation) (*RenderedDocument, error) {
	req := protocol.StreamRenderRequest{Operations: ops}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	body, err := protocol.EncodeStreamRequest(req)
	if err != nil {
		return nil, validationError(err)
	}
	return c.render(ctx, "Stream render", protocol.PathRenderStream, body,
		attribute.Int("viewbridge.operation_count", len(ops)))
}

// RenderBatch renders the operations collected by s.
func (c *Client) RenderBatch(ctx context.Context, s *protocol.Stream) (*RenderedDocument, error) {
	return c.RenderStream(ctx, s.Operations())
}

// Health checks that the render service is up and speaks a compatible
// protocol version.
func (c *Client) Health(ctx context.Context) (protocol.HealthStatus, error) {
	resp, _, err := c.roundTrip(ctx, &wire.Request{Method: http.MethodGet, Path: protocol.PathHealth})
	if err != nil {
		return protocol.HealthStatus{}, err
	}
	if resp.Status != http.StatusOK {
		return protocol.HealthStatus{}, statusError("Health check", resp.Status, resp.Body)
	}
	h, err := protocol.DecodeHealth(resp.Body)
	if err != nil {
		return protocol.HealthStatus{}, &RendererError{Status: 502, Message: err.Error(), Err: err}
	}
	if err := protocol.CheckCompatible(h.Protocol); err != nil {
		return h, &RendererError{Status: 502, Message: err.Error(), Err: err}
	}
	return h, nil
}

func (c *Client) render(ctx context.Context, label, path string, body []byte, attrs ...attribute.KeyValue) (*RenderedDocument, error) {
	ctx, span := c.tracer.Start(ctx, "viewbridge.ipc "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("viewbridge.socket", c.config.SocketPath),
			attribute.Int("viewbridge.request_bytes", len(body)),
		)...),
	)
	defer span.End()

	start := time.Now()
	resp, attempts, err := c.roundTrip(ctx, &wire.Request{Method: http.MethodPost, Path: path, Body: body})
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("viewbridge.attempts", attempts))

	if err != nil {
		c.metrics.observeCall(path, 0, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.metrics.observeCall(path, resp.Status, elapsed)
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	c.logger.Debug("render complete",
		"path", path,
		"status", resp.Status,
		"attempts", attempts,
		"duration", elapsed,
	)

	if resp.Status >= 400 {
		rerr := statusError(label, resp.Status, resp.Body)
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Message)
		return nil, rerr
	}
	span.SetStatus(codes.Ok, "")

	return &RenderedDocument{
		Body:    string(resp.Body),
		Headers: timingHeaders(elapsed, resp.Header.Get("server-timing")),
	}, nil
}

// roundTrip runs up to MaxAttempts exchanges. A missing or refusing socket
// fails at once with a RendererError; any other I/O failure evicts the
// connection and retries on a fresh one.
func (c *Client) roundTrip(ctx context.Context, req *wire.Request) (*wire.Response, int, error) {
	var lastErr error
	attempt := 0
	for attempt < c.config.MaxAttempts {
		attempt++

		resp, err := c.exchange(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		var rerr *RendererError
		if errors.As(err, &rerr) {
			c.metrics.serviceUnavailable()
			c.logger.Warn("render service unavailable", "socket", c.config.SocketPath, "error", rerr.Err)
			return nil, attempt, rerr
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrPoolClosed) {
			break
		}
		if attempt < c.config.MaxAttempts {
			c.metrics.retry()
			c.logger.Warn("retrying render request on a fresh connection",
				"path", req.Path,
				"attempt", attempt,
				"error", err,
			)
		}
	}
	return nil, attempt, transportError(attempt, lastErr)
}

// exchange performs one request/response on one connection. The connection
// is released on success and evicted on any failure.
func (c *Client) exchange(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	conn, err := c.pool.Checkout(ctx, c.config.SocketPath)
	if err != nil {
		if unavailable(err) {
			return nil, unavailableError(c.config.SocketPath, err)
		}
		return nil, fmt.Errorf("ipc: dial %s: %w", c.config.SocketPath, err)
	}

	deadline := time.Now().Add(c.config.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.pool.Evict(conn)
		return nil, err
	}
	// Unblock reads and writes as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})

	if err := wire.WriteRequest(conn, req); err != nil {
		stop()
		c.pool.Evict(conn)
		return nil, fmt.Errorf("ipc: write %s: %w", req.Path, err)
	}
	resp, err := wire.ReadResponse(conn)
	stopped := stop()
	if err != nil {
		c.pool.Evict(conn)
		return nil, fmt.Errorf("ipc: read %s: %w", req.Path, err)
	}

	if !stopped {
		c.pool.Evict(conn)
		return resp, nil
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.pool.Evict(conn)
		return resp, nil
	}
	c.pool.Release(conn, resp.Reusable)
	return resp, nil
}

// timingHeaders builds the server-timing header: the IPC round trip first,
// then whatever the render service reported.
func timingHeaders(elapsed time.Duration, service string) map[string]string {
	ipc := fmt.Sprintf("ipc;dur=%.1f", float64(elapsed.Microseconds())/1000)
	if service != "" {
		ipc += ", " + service
	}
	return map[string]string{"server-timing": ipc}
}
