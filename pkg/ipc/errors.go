package ipc

import (
	"errors"
	"fmt"
	"syscall"
)

// RendererError is the only error a Client returns. Status is the HTTP
// status the caller should answer with.
type RendererError struct {
	Status  int
	Body    string
	Message string

	// Err is the underlying cause for transport and validation failures.
	Err error
}

func (e *RendererError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("render failed (%d)", e.Status)
}

func (e *RendererError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a RendererError with status 404.
func IsNotFound(err error) bool {
	var re *RendererError
	return errors.As(err, &re) && re.Status == 404
}

// IsUnavailable reports whether err reports a render service that was not
// listening.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ErrUnavailable is wrapped by the RendererError returned when the socket is
// missing or refuses connections.
var ErrUnavailable = errors.New("ipc: render service unavailable")

// unavailable reports whether a dial error means nothing is listening.
func unavailable(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

func unavailableError(socketPath string, err error) *RendererError {
	msg := fmt.Sprintf("viewbridge: could not connect to render service at %s", socketPath)
	return &RendererError{
		Status:  502,
		Body:    msg,
		Message: msg,
		Err:     fmt.Errorf("%w: %w", ErrUnavailable, err),
	}
}

func transportError(attempts int, err error) *RendererError {
	return &RendererError{
		Status:  502,
		Message: fmt.Sprintf("viewbridge: render service exchange failed after %d attempt(s): %v", attempts, err),
		Err:     err,
	}
}

func validationError(err error) *RendererError {
	return &RendererError{
		Status:  400,
		Body:    err.Error(),
		Message: "invalid render request: " + err.Error(),
		Err:     err,
	}
}

func statusError(label string, status int, body []byte) *RendererError {
	return &RendererError{
		Status:  status,
		Body:    string(body),
		Message: fmt.Sprintf("%s failed (%d): %s", label, status, body),
	}
}

