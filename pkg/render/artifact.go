package render

import (
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// Kind is the kind of view artifact.
type Kind uint8

const (
	KindPage Kind = iota + 1
	KindLayout
	KindFragment
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindLayout:
		return "layout"
	case KindFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

var (
	// ErrNotFound reports an artifact missing from the source.
	ErrNotFound = errors.New("render: artifact not found")

	// ErrNoComponent reports an artifact with nothing to render.
	ErrNoComponent = errors.New("render: no renderable component")
)

// Artifact is a resolved view artifact.
type Artifact struct {
	Kind Kind
	ID   string
	Path string

	entry *template.Template
}

// Renderable reports whether the artifact has a component to render.
func (a *Artifact) Renderable() bool {
	return a != nil && a.entry != nil
}

// RenderError reports a failure to resolve, parse or execute an artifact.
type RenderError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ViewRenderer resolves and renders view artifacts. Implementations must be
// safe for concurrent use.
type ViewRenderer interface {
	// Resolve returns the artifact for id, or an error wrapping ErrNotFound.
	Resolve(ctx context.Context, kind Kind, id string) (*Artifact, error)

	// Render renders a resolved artifact with props.
	Render(ctx context.Context, a *Artifact, props protocol.Props) (string, error)
}
