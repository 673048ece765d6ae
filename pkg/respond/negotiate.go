package respond

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// FormatParam is the query parameter that forces a response format.
const FormatParam = "format"

// FormatStream is the FormatParam value that asks for a patch stream.
const FormatStream = "stream"

// WantsStream reports whether the request asked for a patch stream, either
// by listing the patch-stream media type in Accept with a non-zero quality
// or with ?format=stream. Wildcards such as */* never select a stream.
func WantsStream(r *http.Request) bool {
	if r.URL.Query().Get(FormatParam) == FormatStream {
		return true
	}
	for _, accept := range r.Header.Values("Accept") {
		for _, mediaRange := range strings.Split(accept, ",") {
			mediaType, q := parseMediaRange(mediaRange)
			if strings.EqualFold(mediaType, protocol.MediaTypePatchStream) {
				return q > 0
			}
		}
	}
	return false
}

// parseMediaRange splits one Accept entry into its media type and quality.
// A missing or malformed q parameter counts as 1.
func parseMediaRange(s string) (string, float64) {
	parts := strings.Split(s, ";")
	mediaType := strings.TrimSpace(parts[0])
	q := 1.0
	for _, param := range parts[1:] {
		name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "q") {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			q = v
		}
	}
	return mediaType, q
}
