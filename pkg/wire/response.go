package wire

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Limits applied while reading a response.
const (
	// MaxHeaderBytes limits the status line plus header block.
	MaxHeaderBytes = 64 * 1024

	// MaxBodyBytes limits a decoded response body.
	MaxBodyBytes = 64 * 1024 * 1024

	// readChunk is the size of a single read from the connection.
	readChunk = 4096

	// defaultStatus is used when the status line cannot be parsed.
	defaultStatus = 500
)

// Decoding errors. Any of them leaves the connection in an unknown state.
var (
	ErrHeaderTooLarge  = errors.New("wire: response header too large")
	ErrBodyTooLarge    = errors.New("wire: response body too large")
	ErrMalformedChunk  = errors.New("wire: malformed chunk")
	ErrMalformedLength = errors.New("wire: malformed content-length")
)

var (
	headerDelimiter = []byte("\r\n\r\n")
	lineDelimiter   = []byte("\r\n")
)

// Framing identifies how a response body was delimited.
type Framing uint8

const (
	FramingNone          Framing = iota // no body (1xx, 204, 304)
	FramingChunked                      // Transfer-Encoding: chunked
	FramingContentLength                // Content-Length: N
	FramingClose                        // read until the peer closed
)

// String returns the string representation of the framing.
func (f Framing) String() string {
	switch f {
	case FramingNone:
		return "none"
	case FramingChunked:
		return "chunked"
	case FramingContentLength:
		return "content-length"
	case FramingClose:
		return "close"
	default:
		return "unknown"
	}
}

// Header holds response headers keyed by lower-cased name.
type Header map[string]string

// Get returns the value for key, case-insensitively.
func (h Header) Get(key string) string {
	return h[strings.ToLower(key)]
}

// Response is one decoded response.
type Response struct {
	Status  int
	Header  Header
	Body    []byte
	Framing Framing

	// Reusable is false when the server asked to close the connection or the
	// body was delimited by connection close.
	Reusable bool
}

// ReadResponse reads one response from r.
func ReadResponse(r io.Reader) (*Response, error) {
	br := &reader{src: r}

	head, err := br.readHeader()
	if err != nil {
		return nil, err
	}
	resp := parseHead(head)

	switch {
	case resp.Status < 200 || resp.Status == 204 || resp.Status == 304:
		resp.Framing = FramingNone
		resp.Body = []byte{}

	case hasToken(resp.Header["transfer-encoding"], "chunked"):
		resp.Framing = FramingChunked
		if resp.Body, err = br.readChunked(); err != nil {
			return nil, err
		}

	case resp.Header["content-length"] != "":
		resp.Framing = FramingContentLength
		n, perr := strconv.ParseInt(strings.TrimSpace(resp.Header["content-length"]), 10, 64)
		if perr != nil || n < 0 {
			return nil, ErrMalformedLength
		}
		if n > MaxBodyBytes {
			return nil, ErrBodyTooLarge
		}
		if resp.Body, err = br.readN(int(n)); err != nil {
			return nil, err
		}

	default:
		resp.Framing = FramingClose
		if resp.Body, err = br.readAll(); err != nil {
			return nil, err
		}
	}

	resp.Reusable = resp.Framing != FramingClose &&
		!hasToken(resp.Header["connection"], "close") &&
		len(br.buf) == 0
	return resp, nil
}

// parseHead parses the status line and header lines.
func parseHead(head []byte) *Response {
	resp := &Response{Status: defaultStatus, Header: Header{}}

	lines := strings.Split(string(head), "\r\n")
	resp.Status = parseStatus(lines[0])

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		resp.Header[key] = strings.TrimSpace(value)
	}
	return resp
}

// parseStatus extracts the 3-digit code from "HTTP/x.y NNN reason".
func parseStatus(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return defaultStatus
	}
	code := fields[1]
	if len(code) != 3 {
		return defaultStatus
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 {
		return defaultStatus
	}
	return n
}

// hasToken reports whether the comma-separated header value contains token,
// case-insensitively.
func hasToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// reader buffers partial reads from the connection.
type reader struct {
	src     io.Reader
	buf     []byte
	scratch [readChunk]byte
}

// fill appends at least one byte from src to buf.
func (r *reader) fill() error {
	for empty := 0; empty < 100; empty++ {
		n, err := r.src.Read(r.scratch[:])
		if n > 0 {
			r.buf = append(r.buf, r.scratch[:n]...)
			return nil
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}

// fillOrUnexpected is fill with io.EOF reported as io.ErrUnexpectedEOF.
func (r *reader) fillOrUnexpected() error {
	err := r.fill()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (r *reader) readHeader() ([]byte, error) {
	searched := 0
	for {
		if idx := bytes.Index(r.buf[searched:], headerDelimiter); idx >= 0 {
			end := searched + idx
			head := append([]byte(nil), r.buf[:end]...)
			r.consume(end + len(headerDelimiter))
			return head, nil
		}
		if len(r.buf) > MaxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}
		if len(r.buf) >= len(headerDelimiter) {
			searched = len(r.buf) - len(headerDelimiter) + 1
		}
		if err := r.fillOrUnexpected(); err != nil {
			return nil, err
		}
	}
}

func (r *reader) readLine() (string, error) {
	searched := 0
	for {
		if idx := bytes.Index(r.buf[searched:], lineDelimiter); idx >= 0 {
			end := searched + idx
			line := string(r.buf[:end])
			r.consume(end + len(lineDelimiter))
			return line, nil
		}
		if len(r.buf) > MaxHeaderBytes {
			return "", ErrMalformedChunk
		}
		if len(r.buf) > 0 {
			searched = len(r.buf) - 1
		}
		if err := r.fillOrUnexpected(); err != nil {
			return "", err
		}
	}
}

func (r *reader) readN(n int) ([]byte, error) {
	for len(r.buf) < n {
		if err := r.fillOrUnexpected(); err != nil {
			return nil, err
		}
	}
	out := append([]byte(nil), r.buf[:n]...)
	r.consume(n)
	return out, nil
}

func (r *reader) readAll() ([]byte, error) {
	out := append([]byte(nil), r.buf...)
	r.buf = r.buf[:0]
	rest, err := io.ReadAll(io.LimitReader(r.src, int64(MaxBodyBytes-len(out)+1)))
	out = append(out, rest...)
	if err != nil {
		return nil, err
	}
	if len(out) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}

func (r *reader) readChunked() ([]byte, error) {
	out := []byte{}
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		size, err := strconv.ParseUint(strings.TrimSpace(line), 16, 63)
		if err != nil {
			return nil, ErrMalformedChunk
		}
		if size == 0 {
			break
		}
		if uint64(len(out))+size > MaxBodyBytes {
			return nil, ErrBodyTooLarge
		}

		chunk, err := r.readN(int(size))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)

		crlf, err := r.readN(2)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(crlf, lineDelimiter) {
			return nil, ErrMalformedChunk
		}
	}

	// Trailer section, terminated by an empty line.
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			return out, nil
		}
	}
}

func (r *reader) consume(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}
