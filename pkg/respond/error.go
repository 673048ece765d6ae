package respond

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vango-dev/viewbridge/pkg/ipc"
	"github.com/vango-dev/viewbridge/pkg/protocol"
)

const internalError = "Internal Server Error"

// Error writes err as the response to r. A RendererError keeps its status;
// any other error becomes a 500. Stream requests get an update envelope on
// the configured error selector, everything else an HTML error page. 5xx
// detail is only written in debug mode.
func Error(w http.ResponseWriter, r *http.Request, err error, opts Options) {
	status, message := describe(err, opts.Debug)
	if status >= http.StatusInternalServerError {
		opts.logger().Error("render failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	if WantsStream(r) {
		body := protocol.Envelope(protocol.ActionUpdate, opts.errorSelector(), protocol.EscapeHTML(message))
		write(w, status, protocol.ContentTypePatchStream, nil, body)
		return
	}
	write(w, status, protocol.ContentTypeHTML, nil, errorPage(status, message))
}

// describe returns the status and the client-facing message for err.
func describe(err error, debug bool) (int, string) {
	status := http.StatusInternalServerError
	detail := err.Error()

	var re *ipc.RendererError
	if errors.As(err, &re) {
		if re.Status >= 400 && re.Status <= 599 {
			status = re.Status
		}
		if re.Body != "" {
			detail = re.Body
		}
	}

	if status < http.StatusInternalServerError {
		return status, detail
	}
	if debug {
		return status, internalError + ": " + detail
	}
	return status, internalError
}

func errorPage(status int, message string) string {
	title := fmt.Sprintf("%d %s", status, http.StatusText(status))
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" +
		protocol.EscapeHTML(title) + "</title></head><body><h1>" +
		protocol.EscapeHTML(title) + "</h1><p>" +
		protocol.EscapeHTML(message) + "</p></body></html>"
}
