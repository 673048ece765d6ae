package respond

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vango-dev/viewbridge/pkg/ipc"
	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// DefaultErrorTarget is the element id error envelopes update unless
// Options names another.
const DefaultErrorTarget = "flash"

// Options controls how responses, and failures in particular, are written.
type Options struct {
	// Debug exposes render service detail in 5xx bodies.
	Debug bool

	// ErrorTarget is the element id stream errors update.
	// Default: "flash".
	ErrorTarget string

	// ErrorTargets is a CSS selector stream errors update. It takes
	// precedence over ErrorTarget.
	ErrorTargets string

	// Logger receives 5xx failures. Default: slog.Default().
	Logger *slog.Logger
}

func (o Options) errorSelector() protocol.Selector {
	switch {
	case o.ErrorTargets != "":
		return protocol.Targets(o.ErrorTargets)
	case o.ErrorTarget != "":
		return protocol.Target(o.ErrorTarget)
	default:
		return protocol.Target(DefaultErrorTarget)
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Document writes a rendered page with status 200.
func Document(w http.ResponseWriter, doc *ipc.RenderedDocument) {
	write(w, http.StatusOK, protocol.ContentTypeHTML, doc.Headers, doc.Body)
}

// Stream writes a rendered patch batch with status 200.
func Stream(w http.ResponseWriter, doc *ipc.RenderedDocument) {
	write(w, http.StatusOK, protocol.ContentTypePatchStream, doc.Headers, doc.Body)
}

// Redirect redirects with 302 for GET and HEAD and 303 otherwise, so
// the browser follows a form submission with a GET.
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	status := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		status = http.StatusFound
	}
	http.Redirect(w, r, location, status)
}

func write(w http.ResponseWriter, status int, contentType string, headers map[string]string, body string) {
	h := w.Header()
	for k, v := range headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Add("Vary", "Accept")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
