package render

import (
	"context"
	"html/template"
	"log/slog"
	"path"
	"strings"
	"sync"
	"text/template/parse"

	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// Default artifact layout.
const (
	DefaultPagesDir   = "pages"
	DefaultLayoutsDir = "layouts"
	DefaultExtension  = ".html"

	// ComponentTemplate is the template name rendered when a file defines it.
	ComponentTemplate = "component"
)

// TemplateConfig configures a TemplateRenderer.
type TemplateConfig struct {
	// PagesDir holds page templates (default: "pages").
	PagesDir string

	// LayoutsDir holds layout templates (default: "layouts").
	LayoutsDir string

	// Extension is appended to identifiers (default: ".html").
	Extension string

	// Debug disables the template cache so edits are picked up per request.
	Debug bool

	// Funcs are made available to every template.
	Funcs template.FuncMap

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// TemplateRenderer renders html/template artifacts from a Source.
type TemplateRenderer struct {
	source Source
	config TemplateConfig
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Artifact
}

// NewTemplateRenderer creates a renderer over source.
func NewTemplateRenderer(source Source, config TemplateConfig) *TemplateRenderer {
	if config.PagesDir == "" {
		config.PagesDir = DefaultPagesDir
	}
	if config.LayoutsDir == "" {
		config.LayoutsDir = DefaultLayoutsDir
	}
	if config.Extension == "" {
		config.Extension = DefaultExtension
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateRenderer{
		source: source,
		config: config,
		logger: logger.With("component", "template-renderer"),
		cache:  make(map[string]*Artifact),
	}
}

// Path returns the source path of an artifact.
func (r *TemplateRenderer) Path(kind Kind, id string) string {
	switch kind {
	case KindPage:
		return path.Join(r.config.PagesDir, id) + r.config.Extension
	case KindLayout:
		return path.Join(r.config.LayoutsDir, id) + r.config.Extension
	default:
		return id + r.config.Extension
	}
}

// Resolve implements ViewRenderer.
func (r *TemplateRenderer) Resolve(ctx context.Context, kind Kind, id string) (*Artifact, error) {
	if err := protocol.ValidateIdentifier(kind.String(), id); err != nil {
		return nil, err
	}
	name := r.Path(kind, id)

	if !r.config.Debug {
		r.mu.RLock()
		a, ok := r.cache[name]
		r.mu.RUnlock()
		if ok {
			return a, nil
		}
	}

	src, err := r.source.Read(ctx, name)
	if err != nil {
		return nil, &RenderError{Kind: kind, ID: id, Err: err}
	}

	a, err := r.parse(kind, id, name, src)
	if err != nil {
		return nil, err
	}

	if !r.config.Debug {
		r.mu.Lock()
		r.cache[name] = a
		r.mu.Unlock()
	}
	r.logger.Debug("artifact resolved", "kind", kind, "id", id, "path", name)
	return a, nil
}

func (r *TemplateRenderer) parse(kind Kind, id, name string, src []byte) (*Artifact, error) {
	t, err := template.New(name).Funcs(r.config.Funcs).Parse(string(src))
	if err != nil {
		return nil, &RenderError{Kind: kind, ID: id, Err: err}
	}

	a := &Artifact{Kind: kind, ID: id, Path: name}
	if c := t.Lookup(ComponentTemplate); c != nil && !blank(c.Tree) {
		a.entry = c
	} else if !blank(t.Tree) {
		a.entry = t
	}
	return a, nil
}

// Render implements ViewRenderer.
func (r *TemplateRenderer) Render(_ context.Context, a *Artifact, props protocol.Props) (string, error) {
	if !a.Renderable() {
		return "", &RenderError{Kind: a.Kind, ID: a.ID, Err: ErrNoComponent}
	}
	if props == nil {
		props = protocol.Props{}
	}

	var b strings.Builder
	if err := a.entry.Execute(&b, map[string]any(props)); err != nil {
		return "", &RenderError{Kind: a.Kind, ID: a.ID, Err: err}
	}
	return b.String(), nil
}

// Purge drops every cached artifact.
func (r *TemplateRenderer) Purge() {
	r.mu.Lock()
	r.cache = make(map[string]*Artifact)
	r.mu.Unlock()
}

// blank reports whether a parsed template has no output besides whitespace.
func blank(tree *parse.Tree) bool {
	if tree == nil || tree.Root == nil {
		return true
	}
	for _, n := range tree.Root.Nodes {
		text, ok := n.(*parse.TextNode)
		if !ok || strings.TrimSpace(string(text.Text)) != "" {
			return false
		}
	}
	return true
}

var _ ViewRenderer = (*TemplateRenderer)(nil)
