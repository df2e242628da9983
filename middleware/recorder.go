package middleware

import (
	"net/http"

	"github.com/mnehpets/mcpserve/endpoint"
)

// statusRecorder remembers the status code and body size written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// statusFor returns the status the client sees. Errors returned down the
// processor chain are rendered by the handler after this recorder is gone, so
// they are mapped the same way the handler maps them.
func (r *statusRecorder) statusFor(err error) int {
	if r.status != 0 {
		return r.status
	}
	if err != nil {
		return endpoint.StatusOf(err)
	}
	return http.StatusOK
}
