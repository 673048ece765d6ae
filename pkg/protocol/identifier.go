package protocol

import (
	"fmt"
	"strings"
)

// ValidationError reports a request that is malformed or unsafe. The render
// service answers it with 400 and never consults the view renderer.
type ValidationError struct {
	Field  string // "page", "fragment", "selector", "action", ...
	Value  string
	Reason string
	Index  int // operation index within a stream request, -1 otherwise
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("protocol: invalid ")
	b.WriteString(e.Field)
	if e.Index >= 0 {
		fmt.Fprintf(&b, " (operation %d)", e.Index)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// ValidateIdentifier checks a page or fragment identifier against the
// path-safety grammar: letters, digits, '_', '-' and '/', no "..", no
// leading '/'.
func ValidateIdentifier(field, id string) error {
	fail := func(reason string) error {
		return &ValidationError{Field: field, Value: id, Reason: reason, Index: -1}
	}

	switch {
	case id == "":
		return fail("must not be empty")
	case len(id) > MaxIdentifierLength:
		return fail(fmt.Sprintf("longer than %d bytes", MaxIdentifierLength))
	case strings.Contains(id, ".."):
		return fail(`must not contain ".."`)
	case id[0] == '/':
		return fail(`must not start with "/"`)
	}

	for i := 0; i < len(id); i++ {
		if !identifierByte(id[i]) {
			return fail(fmt.Sprintf("disallowed character %q", id[i]))
		}
	}
	return nil
}

func identifierByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '/':
		return true
	}
	return false
}
