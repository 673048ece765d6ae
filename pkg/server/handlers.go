package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/viewbridge/pkg/protocol"
	"github.com/vango-dev/viewbridge/pkg/render"
)

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := protocol.DecodePageRequest(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.fail(w, r, classify("decode page request", -1, err))
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, classify("validate page request", -1, err))
		return
	}

	ctx := r.Context()
	page, err := s.views.Resolve(ctx, render.KindPage, req.Page)
	if err != nil {
		s.fail(w, r, classify("resolve page", -1, err))
		return
	}
	layout, err := s.views.Resolve(ctx, render.KindLayout, s.config.Layout)
	if err != nil {
		if errors.Is(err, render.ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrLayoutMissing, err)
		}
		s.fail(w, r, classify("resolve layout", -1, err))
		return
	}

	doc, err := render.ComposePage(ctx, s.views, page, layout, req.Props, s.config.Bootstrap)
	if err != nil {
		s.fail(w, r, classify("render page", -1, err))
		return
	}

	s.write(w, http.StatusOK, protocol.ContentTypeHTML, doc, start)
}

func (s *Server) handleRenderStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := protocol.DecodeStreamRequest(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.fail(w, r, classify("decode stream request", -1, err))
		return
	}
	// Every operation is checked before any artifact is resolved.
	if err := req.Validate(); err != nil {
		s.fail(w, r, classify("validate stream request", -1, err))
		return
	}

	body, failure := s.renderBatch(r, req.Operations)
	if failure != nil {
		s.fail(w, r, failure)
		return
	}

	s.metrics.RecordPatches(len(req.Operations))
	s.write(w, http.StatusOK, protocol.ContentTypePatchStream, body, start)
}

// renderBatch renders ops concurrently and concatenates their envelopes in
// input order. Any failure discards the whole batch and stops operations
// that have not started yet; the lowest-index failure is reported.
func (s *Server) renderBatch(r *http.Request, ops []protocol.PatchOperation) (string, *RequestError) {
	ctx := r.Context()
	parts := make([]string, len(ops))
	errs := make([]*RequestError, len(ops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, op := range ops {
		if op.Action == protocol.ActionRemove {
			parts[i] = protocol.Envelope(op.Action, op.Selector, "")
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fail := func(stage string, err error) error {
				// A sibling's failure cancelled this operation.
				if ctx.Err() == nil && gctx.Err() != nil && errors.Is(err, context.Canceled) {
					return err
				}
				errs[i] = classify(stage, i, err)
				return errs[i]
			}
			frag, err := s.views.Resolve(gctx, render.KindFragment, op.Fragment)
			if err != nil {
				return fail("resolve fragment", err)
			}
			html, err := s.views.Render(gctx, frag, op.Props)
			if err != nil {
				return fail("render fragment", err)
			}
			parts[i] = protocol.Envelope(op.Action, op.Selector, html)
			return nil
		})
	}
	waitErr := g.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}
	if waitErr != nil {
		return "", classify("render stream", -1, waitErr)
	}
	return strings.Join(parts, ""), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data, err := protocol.EncodeHealth()
	if err != nil {
		s.fail(w, r, classify("encode health", -1, err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) write(w http.ResponseWriter, status int, contentType, body string, start time.Time) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Server-Timing", fmt.Sprintf("render;dur=%.1f", float64(time.Since(start).Microseconds())/1000))
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// fail writes err as a plain-text response. 5xx detail is logged and only
// sent to the client in debug mode.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err *RequestError) {
	attrs := []any{
		"path", r.URL.Path,
		"status", err.Status,
		"request_id", chimw.GetReqID(r.Context()),
		"error", err,
	}
	if err.Status >= http.StatusInternalServerError {
		s.logger.Error("render request failed", attrs...)
	} else {
		s.logger.Debug("render request rejected", attrs...)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(err.Status)
	fmt.Fprint(w, err.body(s.config.Debug))
}

// recoverer turns a panicking handler into a 500 that follows the same
// debug rules as any other failure.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			s.fail(w, r, &RequestError{
				Status: http.StatusInternalServerError,
				Op:     "handle request",
				Index:  -1,
				Err:    fmt.Errorf("panic: %v", rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
