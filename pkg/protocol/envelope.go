package protocol

import "strings"

// Content types produced by the render service.
const (
	MediaTypePatchStream   = "text/vnd.viewbridge-patch.html"
	ContentTypePatchStream = MediaTypePatchStream + "; charset=utf-8"
	ContentTypeHTML        = "text/html; charset=utf-8"
)

// EnvelopeTag is the element name wrapping each patch.
const EnvelopeTag = "patch"

// WriteEnvelope appends the envelope for one operation to b. Remove
// envelopes carry only the action and selector; every other action wraps
// html in a template element.
func WriteEnvelope(b *strings.Builder, action Action, sel Selector, html string) {
	name, value := sel.Attr()

	b.WriteString("<" + EnvelopeTag + ` action="`)
	b.WriteString(action.String())
	b.WriteString(`" `)
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(EscapeAttr(value))
	b.WriteString(`">`)
	if action.NeedsFragment() {
		b.WriteString("<template>")
		b.WriteString(html)
		b.WriteString("</template>")
	}
	b.WriteString("</" + EnvelopeTag + ">")
}

// Envelope returns the envelope for one operation as a string.
func Envelope(action Action, sel Selector, html string) string {
	var b strings.Builder
	WriteEnvelope(&b, action, sel, html)
	return b.String()
}

// EscapeAttr escapes text for safe inclusion in a double-quoted HTML
// attribute value.
func EscapeAttr(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		case '\'':
			buf.WriteString("&#39;")
		case '\n':
			buf.WriteString("&#10;")
		case '\r':
			buf.WriteString("&#13;")
		case '\t':
			buf.WriteString("&#9;")
		default:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}

// EscapeHTML escapes text for safe inclusion in HTML content.
func EscapeHTML(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		case '\'':
			buf.WriteString("&#39;")
		default:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}
