package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mnehpets/mcpserve/endpoint"
)

func writeOK(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(w, "hello")
	return err
}

func TestStatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.statusFor(nil))
	assert.Equal(t, http.StatusInternalServerError, rec.statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusUnauthorized, rec.statusFor(endpoint.Error(http.StatusUnauthorized, "", nil)))

	_, err := rec.Write([]byte("abc"))
	require.NoError(t, err)
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.statusFor(errors.New("late")))
	assert.Equal(t, 3, rec.bytes)

	var w http.ResponseWriter = rec
	u, ok := w.(interface{ Unwrap() http.ResponseWriter })
	require.True(t, ok)
	assert.NotNil(t, u.Unwrap())
}

func TestLoggingProcessor_AssignsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLoggingProcessor(zap.New(core))

	var seen string
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	err := p.Process(w, r, func(w http.ResponseWriter, r *http.Request) error {
		seen = RequestIDFromContext(r.Context())
		return writeOK(w, r)
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "http", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, seen, fields["request_id"])
	assert.Equal(t, "/mcp", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.EqualValues(t, 5, fields["bytes"])
}

func TestLoggingProcessor_ReusesIncomingID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLoggingProcessor(zap.New(core))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	require.NoError(t, p.Process(w, r, writeOK))

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", logs.All()[0].ContextMap()["request_id"])
}

func TestLoggingProcessor_LogsErrorStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLoggingProcessor(zap.New(core))

	denied := endpoint.Error(http.StatusForbidden, "nope", nil)
	err := p.Process(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil),
		func(http.ResponseWriter, *http.Request) error { return denied })
	assert.Same(t, denied, err)

	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.EqualValues(t, http.StatusForbidden, entry.ContextMap()["status"])

	logs.TakeAll()
	_ = p.Process(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil),
		func(http.ResponseWriter, *http.Request) error { return errors.New("boom") })
	entry = logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.EqualValues(t, http.StatusInternalServerError, entry.ContextMap()["status"])
	assert.Equal(t, "boom", entry.ContextMap()["error"])
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestMetricsProcessor(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewMetricsProcessor(reg, "mcpserve")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	require.NoError(t, p.Process(httptest.NewRecorder(), r, writeOK))
	require.NoError(t, p.Process(httptest.NewRecorder(), r, writeOK))
	_ = p.Process(httptest.NewRecorder(), r, func(http.ResponseWriter, *http.Request) error {
		return endpoint.Error(http.StatusTooManyRequests, "", nil)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(p.requests.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("429")))
	assert.Equal(t, 2, testutil.CollectAndCount(p.duration))

	expected := `
# HELP mcpserve_http_requests_total HTTP requests handled, by status code.
# TYPE mcpserve_http_requests_total counter
mcpserve_http_requests_total{code="200"} 2
mcpserve_http_requests_total{code="429"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "mcpserve_http_requests_total"))
}

func TestMetricsProcessor_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsProcessor(reg, "dup")
	require.NoError(t, err)
	_, err = NewMetricsProcessor(reg, "dup")
	assert.Error(t, err)
}

func TestTracingProcessor(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p := NewTracingProcessor(tp)
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, "rid-1"))
	require.NoError(t, p.Process(httptest.NewRecorder(), r, writeOK))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /mcp", span.Name)
	assert.Contains(t, span.Attributes, attribute.Int("http.response.status_code", http.StatusOK))
	assert.Contains(t, span.Attributes, attribute.String("http.request.id", "rid-1"))
	assert.Equal(t, codes.Unset, span.Status.Code)
}

func TestTracingProcessor_ServerError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p := NewTracingProcessor(tp)
	err := p.Process(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil),
		func(http.ResponseWriter, *http.Request) error { return errors.New("boom") })
	require.Error(t, err)

	span := exporter.GetSpans()[0]
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Contains(t, span.Attributes, attribute.Int("http.response.status_code", http.StatusInternalServerError))
	require.NotEmpty(t, span.Events)
	assert.Equal(t, "exception", span.Events[0].Name)
}

func TestRateLimitProcessor(t *testing.T) {
	p := NewRateLimitProcessor(0.001, 2)
	h := endpoint.HandleFunc(func(http.ResponseWriter, *http.Request, struct{}) (endpoint.Renderer, error) {
		return &endpoint.NoContentRenderer{}, nil
	}, p)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitProcessor_ZeroBurstRejects(t *testing.T) {
	p := NewRateLimitProcessor(10, 0)
	err := p.Process(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil), writeOK)
	assert.Equal(t, http.StatusTooManyRequests, endpoint.StatusOf(err))

	var ee *endpoint.EndpointError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "1", ee.Header.Get("Retry-After"))
}

func TestBodyLimitProcessor(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		contentLength int64
		wantStatus    int
		wantBody      string
	}{
		{"within limit", "0123", 4, http.StatusOK, "0123"},
		{"declared too large", "0123456789", 10, http.StatusRequestEntityTooLarge, ""},
		{"chunked too large", "0123456789", -1, http.StatusRequestEntityTooLarge, ""},
		{"chunked within limit", "012", -1, http.StatusOK, "012"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewBodyLimitProcessor(4)
			r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(tt.body))
			r.ContentLength = tt.contentLength

			called := false
			var got []byte
			err := p.Process(httptest.NewRecorder(), r, func(_ http.ResponseWriter, r *http.Request) error {
				called = true
				got = endpoint.ReadFullBody(r.Body)
				return nil
			})
			assert.Equal(t, tt.wantStatus, endpoint.StatusOf(err))
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			assert.Equal(t, tt.wantBody, string(got))
		})
	}
}

func TestBodyLimitProcessor_RendersTooLarge(t *testing.T) {
	h := endpoint.Handler(func(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
		return &endpoint.StringRenderer{Body: "unreachable"}, nil
	}, NewBodyLimitProcessor(4))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unreachable")
}

func TestBodyLimitProcessor_Disabled(t *testing.T) {
	p := NewBodyLimitProcessor(0)
	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("0123456789"))

	var got []byte
	require.NoError(t, p.Process(httptest.NewRecorder(), r, func(_ http.ResponseWriter, r *http.Request) error {
		got = endpoint.ReadFullBody(r.Body)
		return nil
	}))
	assert.Equal(t, "0123456789", string(got))
}
