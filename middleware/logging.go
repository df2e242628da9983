package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnehpets/mcpserve/endpoint"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestIDFromContext returns the request id assigned by LoggingProcessor,
// or "" if there is none.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggingProcessor assigns each request an id and logs one line per request
// once the rest of the chain has finished.
//
// An incoming X-Request-Id header is reused; otherwise a random UUID is
// generated. The id is echoed in the response and stored in the request
// context.
type LoggingProcessor struct {
	log *zap.Logger
}

// NewLoggingProcessor creates a LoggingProcessor. A nil logger uses the
// global zap logger.
func NewLoggingProcessor(log *zap.Logger) *LoggingProcessor {
	if log == nil {
		log = zap.L()
	}
	return &LoggingProcessor{log: log.Named("http")}
}

// Process implements endpoint.Processor.
func (p *LoggingProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r)
	status := rec.statusFor(err)

	fields := []zap.Field{
		zap.String("request_id", id),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int("bytes", rec.bytes),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case status >= http.StatusInternalServerError:
		p.log.Error("request", append(fields, zap.Error(err))...)
	case err != nil:
		p.log.Info("request", append(fields, zap.Error(err))...)
	default:
		p.log.Info("request", fields...)
	}
	return err
}

var _ endpoint.Processor = (*LoggingProcessor)(nil)
