package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnehpets/mcpserve/endpoint"
)

const tracerName = "github.com/mnehpets/mcpserve/middleware"

// TracingProcessor wraps the rest of the chain in a server span.
type TracingProcessor struct {
	tracer trace.Tracer
}

// NewTracingProcessor creates a TracingProcessor. A nil provider uses the
// global otel provider.
func NewTracingProcessor(tp trace.TracerProvider) *TracingProcessor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingProcessor{tracer: tp.Tracer(tracerName)}
}

// Process implements endpoint.Processor.
func (p *TracingProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	ctx, span := p.tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)
	defer span.End()

	if id := RequestIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("http.request.id", id))
	}

	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r.WithContext(ctx))
	status := rec.statusFor(err)

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil {
		span.RecordError(err)
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	return err
}

var _ endpoint.Processor = (*TracingProcessor)(nil)
