package wire

import (
	"io"
	"strconv"
)

// Host is the fixed Host header sent on every request.
const Host = "localhost"

// Request is one request sent over the render socket.
type Request struct {
	Method string
	Path   string

	// Body is sent as application/json when non-nil.
	Body []byte
}

// AppendRequest appends the encoded request to dst.
func AppendRequest(dst []byte, r *Request) []byte {
	dst = append(dst, r.Method...)
	dst = append(dst, ' ')
	dst = append(dst, r.Path...)
	dst = append(dst, " HTTP/1.1\r\n"...)
	dst = append(dst, "Host: "+Host+"\r\n"...)
	dst = append(dst, "Connection: keep-alive\r\n"...)
	if r.Body != nil {
		dst = append(dst, "Content-Type: application/json\r\n"...)
		dst = append(dst, "Content-Length: "...)
		dst = strconv.AppendInt(dst, int64(len(r.Body)), 10)
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	return append(dst, r.Body...)
}

// Encode returns the encoded request.
func (r *Request) Encode() []byte {
	return AppendRequest(make([]byte, 0, 128+len(r.Body)), r)
}

// WriteRequest writes the encoded request to w in a single Write call.
func WriteRequest(w io.Writer, r *Request) error {
	data := r.Encode()
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return nil
}
