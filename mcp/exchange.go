package mcp

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/mnehpets/mcpserve/endpoint"
)

// ErrResponseWritten is returned when a second response is written to an
// exchange.
var ErrResponseWritten = errors.New("mcp: response already written")

// Exchange is the boundary to the host that delivers a request and accepts its
// response. A host accepts at most one response per exchange.
type Exchange interface {
	// ReadFullBody returns the entire request body. Read failures end the
	// body early; they are not reported.
	ReadFullBody() []byte
	// WriteResponse sends the finished response and completes the body.
	WriteResponse(status int, header http.Header, body []byte) error
}

// HTTPExchange adapts a net/http request and response writer to Exchange.
type HTTPExchange struct {
	w       http.ResponseWriter
	r       *http.Request
	written bool
}

var _ Exchange = (*HTTPExchange)(nil)

// NewHTTPExchange wraps w and r.
func NewHTTPExchange(w http.ResponseWriter, r *http.Request) *HTTPExchange {
	return &HTTPExchange{w: w, r: r}
}

func (e *HTTPExchange) ReadFullBody() []byte {
	if e.r == nil || e.r.Body == nil || e.r.Body == http.NoBody {
		return nil
	}
	return endpoint.ReadFullBody(e.r.Body)
}

// Written reports whether a response has been started on the exchange.
func (e *HTTPExchange) Written() bool {
	return e.written
}

func (e *HTTPExchange) WriteResponse(status int, header http.Header, body []byte) error {
	if e.written {
		return ErrResponseWritten
	}
	e.written = true
	rr := endpoint.RawRenderer{Status: status, Header: header, Body: body}
	if err := rr.Render(e.w, e.r); err != nil {
		return errors.Wrap(err, "mcp: write response body")
	}
	return nil
}

// StreamExchange reads a raw request body from an io.Reader and writes the
// response as an HTTP/1.1 message to an io.Writer. It serves hosts that hand
// over a body stream and expect a serialized response, such as a process
// invoked once per request over stdin and stdout.
type StreamExchange struct {
	in      io.Reader
	out     io.Writer
	written bool
}

var _ Exchange = (*StreamExchange)(nil)

// NewStreamExchange reads the body from in and writes the response to out.
func NewStreamExchange(in io.Reader, out io.Writer) *StreamExchange {
	return &StreamExchange{in: in, out: out}
}

func (e *StreamExchange) ReadFullBody() []byte {
	return endpoint.ReadFullBody(e.in)
}

func (e *StreamExchange) WriteResponse(status int, header http.Header, body []byte) error {
	if e.written {
		return ErrResponseWritten
	}
	e.written = true

	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}

	resp := &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		ContentLength: int64(len(body)),
	}
	if len(body) > 0 {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err := resp.Write(e.out); err != nil {
		return errors.Wrap(err, "mcp: write response message")
	}
	return nil
}
