package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vango-dev/viewbridge/pkg/protocol"
	"github.com/vango-dev/viewbridge/pkg/render"
)

// Sentinel errors for the render service.
var (
	// ErrNoSocketPath is returned when Run is called without a socket path.
	ErrNoSocketPath = errors.New("server: socket path is required")

	// ErrSocketInUse is returned when another process is serving on the
	// configured socket.
	ErrSocketInUse = errors.New("server: socket already in use")

	// ErrNotSocket is returned when the socket path exists and is not a
	// socket.
	ErrNotSocket = errors.New("server: path exists and is not a socket")

	// ErrLayoutMissing is returned when the configured layout cannot be
	// resolved. It is a service fault, not a client one.
	ErrLayoutMissing = errors.New("server: layout not found")
)

// RequestError is a failure tied to one render request. Op is the failing
// step and Index the operation position within a stream batch, or -1.
type RequestError struct {
	Status int
	Op     string
	Index  int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s (operation %d): %v", e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classify wraps err in a RequestError with the status it maps to.
func classify(op string, index int, err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Status: statusFor(err), Op: op, Index: index, Err: err}
}

// statusFor maps a request failure to an HTTP status.
func statusFor(err error) int {
	var ve *protocol.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &ve), errors.As(err, &mbe):
		return http.StatusBadRequest
	case errors.Is(err, ErrLayoutMissing):
		return http.StatusInternalServerError
	case errors.Is(err, render.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// body returns the text sent to the client for e. 5xx detail is only
// exposed in debug mode.
func (e *RequestError) body(debug bool) string {
	if e.Status < http.StatusInternalServerError {
		return e.Error()
	}
	text := http.StatusText(e.Status)
	if text == "" {
		text = "Internal Server Error"
	}
	if debug {
		return text + ": " + e.Error()
	}
	return text
}
