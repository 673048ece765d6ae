package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/tomb.v2"
)

// ErrPoolClosed is returned by Checkout after Close.
var ErrPoolClosed = errors.New("ipc: pool closed")

// Dialer opens connections to the render service. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Conn is a connection checked out of a Pool.
type Conn struct {
	net.Conn

	id       ulid.ULID
	key      poolKey
	pooled   bool
	busy     bool
	lastUsed time.Time
	uses     int
}

// ID returns the connection id used in logs.
func (c *Conn) ID() string {
	return c.id.String()
}

// Pooled reports whether the connection is cached under a token. Unpooled
// connections are closed on release.
func (c *Conn) Pooled() bool {
	return c.pooled
}

// Uses returns how many exchanges completed on the connection.
func (c *Conn) Uses() int {
	return c.uses
}

type poolKey struct {
	socket string
	token  Token
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDialer sets the dialer used to open connections.
func WithDialer(d Dialer) PoolOption {
	return func(p *Pool) {
		p.dialer = d
	}
}

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.dialTimeout = d
	}
}

// WithIdleTimeout closes pooled connections left idle longer than d.
// Zero keeps idle connections until they fail or the pool is closed.
func WithIdleTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.idleTimeout = d
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPoolMetrics records dials, evictions and idle connections.
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// Pool caches one connection per (socket path, token). It is safe for
// concurrent use; the connection map is its only shared state.
type Pool struct {
	dialer      Dialer
	dialTimeout time.Duration
	idleTimeout time.Duration
	logger      *slog.Logger
	metrics     *Metrics

	mu     sync.Mutex
	conns  map[poolKey]*Conn
	closed bool

	reaper  tomb.Tomb
	reaping bool
}

// NewPool creates a pool. With an idle timeout it starts a background reaper
// that runs until Close.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		dialer:      &net.Dialer{},
		dialTimeout: DefaultDialTimeout,
		logger:      slog.Default().With("component", "ipc-pool"),
		conns:       make(map[poolKey]*Conn),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.idleTimeout > 0 {
		p.reaping = true
		p.reaper.Go(p.reap)
	}
	return p
}

// Checkout returns the connection cached for the token in ctx, opening one
// if needed. Without a token, or while the token's connection is busy, it
// returns an unpooled connection that is closed on release.
func (p *Pool) Checkout(ctx context.Context, socketPath string) (*Conn, error) {
	tok, hasToken := TokenFromContext(ctx)
	key := poolKey{socket: socketPath, token: tok}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if hasToken {
		if c, ok := p.conns[key]; ok && !c.busy {
			c.busy = true
			p.metrics.setIdle(p.idleLocked())
			p.mu.Unlock()
			return c, nil
		}
	}
	p.mu.Unlock()

	nc, err := p.dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	c := &Conn{Conn: nc, id: ulid.Make(), key: key, busy: true}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		nc.Close()
		return nil, ErrPoolClosed
	}
	if _, taken := p.conns[key]; hasToken && !taken {
		c.pooled = true
		p.conns[key] = c
	}
	p.logger.Debug("connection opened", "socket", socketPath, "conn_id", c.ID(), "pooled", c.pooled)
	return c, nil
}

func (p *Pool) dial(ctx context.Context, socketPath string) (net.Conn, error) {
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}
	p.metrics.dial()
	return p.dialer.DialContext(ctx, "unix", socketPath)
}

// Release returns c after a completed exchange. A connection that is not
// reusable is closed and evicted.
func (p *Pool) Release(c *Conn, reusable bool) {
	if !reusable {
		p.evict(c, evictClose)
		return
	}

	p.mu.Lock()
	c.uses++
	c.lastUsed = time.Now()
	if !c.pooled || p.closed || p.conns[c.key] != c {
		p.mu.Unlock()
		c.Conn.Close()
		return
	}
	c.busy = false
	p.metrics.setIdle(p.idleLocked())
	p.mu.Unlock()
}

// Evict closes c and removes it from the pool. Call it after any I/O error.
func (p *Pool) Evict(c *Conn) {
	p.evict(c, evictIOError)
}

func (p *Pool) evict(c *Conn, reason string) {
	p.mu.Lock()
	if p.conns[c.key] == c {
		delete(p.conns, c.key)
	}
	p.mu.Unlock()

	c.Conn.Close()
	p.metrics.evict(reason)
	p.logger.Debug("connection evicted", "conn_id", c.ID(), "reason", reason, "uses", c.uses)
}

// Forget closes every idle connection held under tok.
func (p *Pool) Forget(tok Token) {
	var idle []*Conn
	p.mu.Lock()
	for key, c := range p.conns {
		if key.token == tok && !c.busy {
			delete(p.conns, key)
			idle = append(idle, c)
		}
	}
	p.metrics.setIdle(p.idleLocked())
	p.mu.Unlock()

	for _, c := range idle {
		c.Conn.Close()
		p.metrics.evict(evictShutdown)
	}
}

// Len returns the number of pooled connections, busy or idle.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes idle connections and stops the reaper. Busy connections are
// closed when released. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []*Conn
	for key, c := range p.conns {
		delete(p.conns, key)
		if !c.busy {
			idle = append(idle, c)
		}
	}
	p.metrics.setIdle(0)
	p.mu.Unlock()

	for _, c := range idle {
		c.Conn.Close()
		p.metrics.evict(evictShutdown)
	}

	if p.reaping {
		p.reaper.Kill(nil)
		return p.reaper.Wait()
	}
	return nil
}

func (p *Pool) reap() error {
	ticker := time.NewTicker(max(p.idleTimeout/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-p.reaper.Dying():
			return nil
		case now := <-ticker.C:
			p.reapIdle(now)
		}
	}
}

func (p *Pool) reapIdle(now time.Time) {
	var stale []*Conn
	p.mu.Lock()
	for key, c := range p.conns {
		if !c.busy && now.Sub(c.lastUsed) > p.idleTimeout {
			delete(p.conns, key)
			stale = append(stale, c)
		}
	}
	p.metrics.setIdle(p.idleLocked())
	p.mu.Unlock()

	for _, c := range stale {
		c.Conn.Close()
		p.metrics.evict(evictIdle)
		p.logger.Debug("idle connection closed", "conn_id", c.ID())
	}
}

func (p *Pool) idleLocked() int {
	n := 0
	for _, c := range p.conns {
		if !c.busy {
			n++
		}
	}
	return n
}
