package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/mnehpets/mcpserve/endpoint"
)

// BodyLimitProcessor rejects request bodies larger than MaxBytes with 413
// before later stages run. Bodies within the limit are buffered and passed on
// whole.
type BodyLimitProcessor struct {
	MaxBytes int64
}

// NewBodyLimitProcessor limits request bodies to maxBytes. A non-positive
// limit disables the cap.
func NewBodyLimitProcessor(maxBytes int64) *BodyLimitProcessor {
	return &BodyLimitProcessor{MaxBytes: maxBytes}
}

// Process implements endpoint.Processor.
func (p *BodyLimitProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.MaxBytes <= 0 || r.Body == nil || r.Body == http.NoBody {
		return next(w, r)
	}
	if r.ContentLength > p.MaxBytes {
		return endpoint.Error(http.StatusRequestEntityTooLarge, "", errors.Newf("body of %d bytes exceeds %d", r.ContentLength, p.MaxBytes))
	}

	// A read error other than the limit ends the body early.
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.MaxBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return endpoint.Error(http.StatusRequestEntityTooLarge, "", errors.Wrap(err, "request body"))
	}

	r2 := r.Clone(r.Context())
	r2.Body = io.NopCloser(bytes.NewReader(data))
	return next(w, r2)
}

var _ endpoint.Processor = (*BodyLimitProcessor)(nil)
