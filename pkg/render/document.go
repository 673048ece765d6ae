package render

import (
	"context"
	"html/template"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// DefaultVendorPrefix is the URL prefix bare module specifiers map to.
const DefaultVendorPrefix = "/assets/vendor/"

const doctype = "<!DOCTYPE html>"

// Bootstrap is the metadata injected into the head of every page.
type Bootstrap struct {
	// Imports are bare module specifiers exposed through the import map.
	Imports []string

	// VendorPrefix is prepended to each specifier (default: "/assets/vendor/").
	VendorPrefix string
}

// ImportMap returns the specifier to URL mapping.
func (b Bootstrap) ImportMap() map[string]string {
	prefix := b.VendorPrefix
	if prefix == "" {
		prefix = DefaultVendorPrefix
	}
	m := make(map[string]string, len(b.Imports))
	for _, name := range b.Imports {
		m[name] = prefix + name
	}
	return m
}

// Script returns the import map script element.
func (b Bootstrap) Script() (string, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(map[string]any{
		"imports": b.ImportMap(),
	})
	if err != nil {
		return "", err
	}
	return `<script type="importmap">` + string(data) + `</script>`, nil
}

// InjectHead inserts snippet before the closing head tag, or prepends it
// when the document has no head.
func InjectHead(doc, snippet string) string {
	if i := indexFold(doc, "</head>"); i >= 0 {
		return doc[:i] + snippet + doc[i:]
	}
	return snippet + doc
}

// EnsureDoctype prefixes doc with an HTML5 doctype unless it has one.
func EnsureDoctype(doc string) string {
	trimmed := strings.TrimLeft(doc, " \t\r\n")
	if len(trimmed) >= len(doctype) && strings.EqualFold(trimmed[:len(doctype)], doctype) {
		return doc
	}
	return doctype + doc
}

// ComposePage renders page, renders layout around it and returns the
// finished document. The layout sees the page markup as .content, the page
// identifier as .page and the page props as .props.
func ComposePage(ctx context.Context, vr ViewRenderer, page, layout *Artifact, props protocol.Props, boot Bootstrap) (string, error) {
	body, err := vr.Render(ctx, page, props)
	if err != nil {
		return "", err
	}

	doc, err := vr.Render(ctx, layout, protocol.Props{
		"content": template.HTML(body),
		"page":    page.ID,
		"props":   props,
	})
	if err != nil {
		return "", err
	}

	script, err := boot.Script()
	if err != nil {
		return "", err
	}
	return EnsureDoctype(InjectHead(doc, script)), nil
}

// indexFold is strings.Index with ASCII case folding of substr.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
