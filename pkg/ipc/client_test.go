package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/viewbridge/pkg/middleware"
	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// fakeService is a scripted render service on a real Unix socket. handle is
// called once per accepted connection with its 1-based index.
type fakeService struct {
	path    string
	accepts atomic.Int32
}

func startService(t *testing.T, handle func(n int, conn net.Conn)) *fakeService {
	t.Helper()
	s := &fakeService{path: filepath.Join(t.TempDir(), "r.sock")}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := int(s.accepts.Add(1))
			go func() {
				defer conn.Close()
				handle(n, conn)
			}()
		}
	}()
	return s
}

// serve answers requests on conn until the peer closes it.
func serve(conn net.Conn, reply func(req *http.Request, body []byte) string) {
	br := bufio.NewReader(conn)
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		body, _ := io.ReadAll(req.Body)
		if _, err := io.WriteString(conn, reply(req, body)); err != nil {
			return
		}
	}
}

func response(status int, headers map[string]string, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n%s", len(body), body)
	return b.String()
}

func newTestClient(t *testing.T, path string) (*Client, *Metrics) {
	t.Helper()
	m := NewMetrics(middleware.WithRegistry(prometheus.NewRegistry()))
	c, err := NewClient(Config{SocketPath: path, Metrics: m, IOTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, m
}

func tokenCtx() context.Context {
	return WithToken(context.Background(), NewToken())
}

func TestNewClientRequiresSocket(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error without socket path")
	}
}

type seenRequest struct {
	path, body, contentType string
}

func TestClientRenderPage(t *testing.T) {
	seen := make(chan seenRequest, 1)
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(req *http.Request, body []byte) string {
			seen <- seenRequest{req.URL.Path, string(body), req.Header.Get("Content-Type")}
			return response(200, map[string]string{"Server-Timing": "render;dur=2.0"}, "<!DOCTYPE html><html></html>")
		})
	})
	c, _ := newTestClient(t, svc.path)

	doc, err := c.RenderPage(tokenCtx(), "users/index", protocol.Props{"count": 2})
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if doc.Body != "<!DOCTYPE html><html></html>" || doc.String() != doc.Body {
		t.Errorf("Body = %q", doc.Body)
	}
	got := <-seen
	if got.path != protocol.PathRender {
		t.Errorf("path = %q", got.path)
	}
	if got.body != `{"page":"users/index","props":{"count":2}}` {
		t.Errorf("body = %s", got.body)
	}
	if got.contentType != "application/json" {
		t.Errorf("content-type = %q", got.contentType)
	}

	timing := doc.Headers["server-timing"]
	if !strings.HasPrefix(timing, "ipc;dur=") || !strings.HasSuffix(timing, ", render;dur=2.0") {
		t.Errorf("server-timing = %q", timing)
	}
}

func TestClientTimingWithoutServiceHeader(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(*http.Request, []byte) string { return response(200, nil, "ok") })
	})
	c, _ := newTestClient(t, svc.path)

	doc, err := c.RenderPage(tokenCtx(), "home", nil)
	if err != nil {
		t.Fatal(err)
	}
	if timing := doc.Headers["server-timing"]; !strings.HasPrefix(timing, "ipc;dur=") || strings.Contains(timing, ",") {
		t.Errorf("server-timing = %q", timing)
	}
}

func TestClientReusesConnectionForToken(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(*http.Request, []byte) string { return response(200, nil, "ok") })
	})
	c, _ := newTestClient(t, svc.path)

	ctx := tokenCtx()
	for i := 0; i < 3; i++ {
		if _, err := c.RenderPage(ctx, "home", nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := svc.accepts.Load(); got != 1 {
		t.Errorf("accepted connections = %d, want 1", got)
	}
	if c.Pool().Len() != 1 {
		t.Errorf("pool Len() = %d, want 1", c.Pool().Len())
	}
}

func TestClientRetriesAfterMidRequestFailure(t *testing.T) {
	svc := startService(t, func(n int, conn net.Conn) {
		if n == 1 {
			// Read the request, then drop the connection without answering.
			http.ReadRequest(bufio.NewReader(conn))
			return
		}
		serve(conn, func(*http.Request, []byte) string { return response(200, nil, "second") })
	})
	c, m := newTestClient(t, svc.path)

	doc, err := c.RenderPage(tokenCtx(), "home", nil)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if doc.Body != "second" {
		t.Errorf("Body = %q", doc.Body)
	}
	if got := svc.accepts.Load(); got != 2 {
		t.Errorf("accepted connections = %d, want 2", got)
	}
	if got := counterValue(t, m.retriesTotal); got != 1 {
		t.Errorf("retries_total = %v, want 1", got)
	}
	if got := counterValue(t, m.evictionsTotal.WithLabelValues(evictIOError)); got != 1 {
		t.Errorf("evictions(io_error) = %v, want 1", got)
	}
}

func TestClientRetriesStaleConnection(t *testing.T) {
	svc := startService(t, func(n int, conn net.Conn) {
		if n == 1 {
			// Answer once, then close as an idle keep-alive timeout would.
			br := bufio.NewReader(conn)
			http.ReadRequest(br)
			io.WriteString(conn, response(200, nil, "first"))
			return
		}
		serve(conn, func(*http.Request, []byte) string { return response(200, nil, "fresh") })
	})
	c, _ := newTestClient(t, svc.path)

	ctx := tokenCtx()
	if _, err := c.RenderPage(ctx, "home", nil); err != nil {
		t.Fatal(err)
	}
	doc, err := c.RenderPage(ctx, "home", nil)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if doc.Body != "fresh" {
		t.Errorf("Body = %q", doc.Body)
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		http.ReadRequest(bufio.NewReader(conn))
	})
	c, m := newTestClient(t, svc.path)

	_, err := c.RenderPage(tokenCtx(), "home", nil)
	var re *RendererError
	if !errors.As(err, &re) {
		t.Fatalf("err = %T %v, want *RendererError", err, err)
	}
	if re.Status != 502 {
		t.Errorf("Status = %d, want 502", re.Status)
	}
	if IsUnavailable(err) {
		t.Error("I/O failure should not report unavailable")
	}
	if got := svc.accepts.Load(); got != 2 {
		t.Errorf("accepted connections = %d, want 2", got)
	}
	if got := counterValue(t, m.retriesTotal); got != 1 {
		t.Errorf("retries_total = %v, want 1", got)
	}
}

func TestClientMissingSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	c, m := newTestClient(t, path)

	calls := map[string]func() error{
		"page": func() error {
			_, err := c.RenderPage(tokenCtx(), "home", nil)
			return err
		},
		"stream": func() error {
			op, _ := protocol.NewOperation(protocol.ActionRemove, protocol.Target("row-1"), "", nil)
			_, err := c.RenderStream(tokenCtx(), []protocol.PatchOperation{op})
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			var re *RendererError
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want *RendererError", err)
			}
			if re.Status != 502 {
				t.Errorf("Status = %d, want 502", re.Status)
			}
			if !IsUnavailable(err) {
				t.Error("expected IsUnavailable")
			}
			if !strings.Contains(re.Body, path) {
				t.Errorf("Body = %q, want socket path", re.Body)
			}
		})
	}

	if got := counterValue(t, m.retriesTotal); got != 0 {
		t.Errorf("retries_total = %v, want 0", got)
	}
	if got := counterValue(t, m.unavailable); got != 2 {
		t.Errorf("unavailable_total = %v, want 2", got)
	}
}

func TestClientRefusedSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	c, m := newTestClient(t, path)
	_, err = c.RenderPage(tokenCtx(), "home", nil)
	if !IsUnavailable(err) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if got := counterValue(t, m.retriesTotal); got != 0 {
		t.Errorf("retries_total = %v, want 0", got)
	}
}

func TestClientConnectionCloseEvicts(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(*http.Request, []byte) string {
			return response(200, map[string]string{"Connection": "close"}, "bye")
		})
	})
	c, m := newTestClient(t, svc.path)

	ctx := tokenCtx()
	if _, err := c.RenderPage(ctx, "home", nil); err != nil {
		t.Fatal(err)
	}
	if c.Pool().Len() != 0 {
		t.Errorf("pool Len() = %d, want 0 after Connection: close", c.Pool().Len())
	}
	if _, err := c.RenderPage(ctx, "home", nil); err != nil {
		t.Fatal(err)
	}
	if got := svc.accepts.Load(); got != 2 {
		t.Errorf("accepted connections = %d, want 2", got)
	}
	if got := counterValue(t, m.evictionsTotal.WithLabelValues(evictClose)); got != 2 {
		t.Errorf("evictions(connection_close) = %v, want 2", got)
	}
	if got := counterValue(t, m.retriesTotal); got != 0 {
		t.Errorf("retries_total = %v, want 0", got)
	}
}

func TestClientStatusErrors(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(req *http.Request, _ []byte) string {
			if req.URL.Path == protocol.PathRenderStream {
				return response(500, nil, "Internal Server Error")
			}
			return response(404, nil, "page not found: home")
		})
	})
	c, m := newTestClient(t, svc.path)
	ctx := tokenCtx()

	_, err := c.RenderPage(ctx, "home", protocol.Props{})
	var re *RendererError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RendererError", err)
	}
	if re.Status != 404 || re.Body != "page not found: home" {
		t.Errorf("RendererError = %+v", re)
	}
	if re.Error() != "Render failed (404): page not found: home" {
		t.Errorf("Error() = %q", re.Error())
	}
	if !IsNotFound(err) {
		t.Error("expected IsNotFound")
	}

	op, _ := protocol.NewOperation(protocol.ActionUpdate, protocol.Target("flash"), "components/Flash", nil)
	_, err = c.RenderStream(ctx, []protocol.PatchOperation{op})
	if !errors.As(err, &re) || re.Status != 500 {
		t.Fatalf("err = %v, want 500", err)
	}
	if !strings.HasPrefix(re.Message, "Stream render failed (500)") {
		t.Errorf("Message = %q", re.Message)
	}

	if got := counterValue(t, m.retriesTotal); got != 0 {
		t.Errorf("status errors must not be retried, retries_total = %v", got)
	}
	if got := svc.accepts.Load(); got != 1 {
		t.Errorf("accepted connections = %d, want 1", got)
	}
}

func TestClientValidatesBeforeSending(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(*http.Request, []byte) string { return response(200, nil, "ok") })
	})
	c, _ := newTestClient(t, svc.path)

	tests := []struct {
		name string
		call func() error
	}{
		{"page traversal", func() error {
			_, err := c.RenderPage(tokenCtx(), "../secrets", nil)
			return err
		}},
		{"page absolute", func() error {
			_, err := c.RenderPage(tokenCtx(), "/etc/passwd", nil)
			return err
		}},
		{"stream traversal", func() error {
			ops := []protocol.PatchOperation{
				{Action: protocol.ActionRemove, Selector: protocol.Target("a")},
				{Action: protocol.ActionAppend, Selector: protocol.Target("b"), Fragment: "../x", Props: protocol.Props{}},
			}
			_, err := c.RenderStream(tokenCtx(), ops)
			return err
		}},
		{"stream both selectors", func() error {
			ops := []protocol.PatchOperation{
				{Action: protocol.ActionRemove, Selector: protocol.Selector{Target: "a", Targets: ".b"}},
			}
			_, err := c.RenderStream(tokenCtx(), ops)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var re *RendererError
			if !errors.As(err, &re) || re.Status != 400 {
				t.Fatalf("err = %v, want 400", err)
			}
			var ve *protocol.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected wrapped ValidationError, got %v", err)
			}
		})
	}

	if got := svc.accepts.Load(); got != 0 {
		t.Errorf("accepted connections = %d, want 0", got)
	}
}

func TestClientRenderBatchChunked(t *testing.T) {
	const payload = `<patch action="remove" targets=".row"></patch>`
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: " + protocol.ContentTypePatchStream + "\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		fmt.Sprintf("%x\r\n%s\r\n", 10, payload[:10]) +
		fmt.Sprintf("%x\r\n%s\r\n", len(payload)-10, payload[10:]) +
		"0\r\n\r\n"

	bodies := make(chan string, 1)
	svc := startService(t, func(_ int, conn net.Conn) {
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		body, _ := io.ReadAll(req.Body)
		bodies <- string(body)

		// Dribble the response so the client sees many partial reads.
		for i := 0; i < len(raw); i += 7 {
			io.WriteString(conn, raw[i:min(i+7, len(raw))])
			time.Sleep(time.Millisecond)
		}
		br.Peek(1)
	})
	c, _ := newTestClient(t, svc.path)

	s := protocol.NewStream()
	if err := s.Remove(protocol.Targets(".row")); err != nil {
		t.Fatal(err)
	}
	doc, err := c.RenderBatch(tokenCtx(), s)
	if err != nil {
		t.Fatalf("RenderBatch: %v", err)
	}
	if doc.Body != payload {
		t.Errorf("Body = %q, want %q", doc.Body, payload)
	}
	if got := <-bodies; got != `{"operations":[{"action":"remove","targets":".row"}]}` {
		t.Errorf("request body = %s", got)
	}
}

func TestClientContextDeadline(t *testing.T) {
	release := make(chan struct{})
	svc := startService(t, func(_ int, conn net.Conn) {
		http.ReadRequest(bufio.NewReader(conn))
		<-release
	})
	defer close(release)
	c, _ := newTestClient(t, svc.path)

	ctx, cancel := context.WithTimeout(tokenCtx(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.RenderPage(ctx, "home", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, want it bounded by the context", elapsed)
	}
	if got := svc.accepts.Load(); got != 1 {
		t.Errorf("accepted connections = %d, want 1 (no retry after the context is done)", got)
	}
	if c.Pool().Len() != 0 {
		t.Error("timed-out connection should be evicted")
	}
}

func TestClientHealth(t *testing.T) {
	var version atomic.Value
	version.Store(protocol.Version)
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(req *http.Request, _ []byte) string {
			if req.Method != http.MethodGet || req.URL.Path != protocol.PathHealth {
				return response(404, nil, "")
			}
			return response(200, nil, fmt.Sprintf(`{"status":"ok","protocol":%q}`, version.Load()))
		})
	})
	c, _ := newTestClient(t, svc.path)

	h, err := c.Health(tokenCtx())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("Status = %q", h.Status)
	}

	for _, v := range []string{"2.0.0", "2.3.1"} {
		version.Store(v)
		_, err := c.Health(tokenCtx())
		var re *RendererError
		if !errors.As(err, &re) || re.Status != http.StatusBadGateway {
			t.Errorf("protocol %s: Health() = %v, want 502 RendererError", v, err)
		}
	}
}

func TestClientsShareMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(middleware.WithRegistry(reg))
	for i := 0; i < 2; i++ {
		c, err := NewClient(Config{SocketPath: "/tmp/viewbridge-unused.sock", Metrics: m})
		if err != nil {
			t.Fatal(err)
		}
		c.Close()
	}

	defer func() {
		if recover() == nil {
			t.Error("registering client metrics twice on one registry should panic")
		}
	}()
	NewMetrics(middleware.WithRegistry(reg))
}

func TestClientSharedPool(t *testing.T) {
	svc := startService(t, func(_ int, conn net.Conn) {
		serve(conn, func(*http.Request, []byte) string { return response(200, nil, "ok") })
	})
	pool := NewPool()
	defer pool.Close()

	c, err := NewClient(Config{SocketPath: svc.path, Pool: pool})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.RenderPage(tokenCtx(), "home", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if pool.Len() != 1 {
		t.Errorf("closing the client must not close a shared pool, Len() = %d", pool.Len())
	}
}
