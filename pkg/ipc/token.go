package ipc

import (
	"context"
	"net/http"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Token identifies the concurrency context that owns pooled connections.
type Token string

// NewToken returns a fresh, unique token.
func NewToken() Token {
	return Token(ulid.Make().String())
}

type tokenKey struct{}

// WithToken returns a copy of ctx carrying tok.
func WithToken(ctx context.Context, tok Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFromContext returns the token carried by ctx, if any.
func TokenFromContext(ctx context.Context) (Token, bool) {
	tok, ok := ctx.Value(tokenKey{}).(Token)
	return tok, ok && tok != ""
}

// Leases hands out tokens to concurrent callers and takes them back, so the
// connections opened under a token outlive the request that opened them.
// A token is never leased to two callers at once.
type Leases struct {
	mu   sync.Mutex
	free []Token
}

// Acquire returns an idle token, or a new one if none is idle.
func (l *Leases) Acquire() Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.free); n > 0 {
		tok := l.free[n-1]
		l.free = l.free[:n-1]
		return tok
	}
	return NewToken()
}

// Release returns tok for reuse by a later caller.
func (l *Leases) Release(tok Token) {
	l.mu.Lock()
	l.free = append(l.free, tok)
	l.mu.Unlock()
}

// Idle returns the number of tokens waiting to be reused.
func (l *Leases) Idle() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.free)
}

// Middleware leases a token for the duration of each request and stores it
// in the request context.
func Middleware(l *Leases) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := l.Acquire()
			defer l.Release(tok)
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), tok)))
		})
	}
}
