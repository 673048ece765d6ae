package respond

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-dev/viewbridge/pkg/ipc"
	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// Renderer is the subset of *ipc.Client a Responder needs.
type Renderer interface {
	RenderPage(ctx context.Context, page string, props protocol.Props) (*ipc.RenderedDocument, error)
	RenderBatch(ctx context.Context, s *protocol.Stream) (*ipc.RenderedDocument, error)
}

// Responder renders through a Renderer and writes the result, or the
// failure, to the response.
type Responder struct {
	renderer Renderer
	opts     Options
}

// New creates a Responder.
func New(renderer Renderer, opts Options) *Responder {
	return &Responder{renderer: renderer, opts: opts}
}

// Page renders page with props and writes the document.
//
//	func (h *Users) Index(w http.ResponseWriter, r *http.Request) {
//	    h.respond.Page(w, r, "users/index", protocol.Props{"users": h.repo.All()})
//	}
func (rs *Responder) Page(w http.ResponseWriter, r *http.Request, page string, props protocol.Props) {
	doc, err := rs.renderer.RenderPage(r.Context(), page, props)
	if err != nil {
		Error(w, r, err, rs.opts)
		return
	}
	Document(w, doc)
}

// Stream collects patches with build, renders them as one batch and writes
// the result. A build error aborts before anything is sent to the render
// service.
//
//	h.respond.Stream(w, r, func(s *protocol.Stream) error {
//	    if err := s.Prepend(protocol.Target("users"), "components/UserRow", protocol.Props{"user": u}); err != nil {
//	        return err
//	    }
//	    return respond.Success(s, "User created")
//	})
func (rs *Responder) Stream(w http.ResponseWriter, r *http.Request, build func(s *protocol.Stream) error) {
	s := protocol.NewStream()
	if err := build(s); err != nil {
		Error(w, r, buildError(err), rs.opts)
		return
	}
	doc, err := rs.renderer.RenderBatch(r.Context(), s)
	if err != nil {
		Error(w, r, err, rs.opts)
		return
	}
	Stream(w, doc)
}

// Error writes err with the responder's options.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	Error(w, r, err, rs.opts)
}

// buildError maps a validation failure raised while building a stream to
// a 400; anything else stays a 500.
func buildError(err error) error {
	var ve *protocol.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return &ipc.RendererError{Status: http.StatusBadRequest, Body: ve.Error(), Message: ve.Error(), Err: err}
}
