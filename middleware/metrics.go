package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnehpets/mcpserve/endpoint"
)

// MetricsProcessor records a request counter and a latency histogram, both
// labelled by response status code.
type MetricsProcessor struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsProcessor registers the collectors with reg under namespace.
func NewMetricsProcessor(reg prometheus.Registerer, namespace string) (*MetricsProcessor, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &MetricsProcessor{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by status code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code"}),
	}
	if err := reg.Register(p.requests); err != nil {
		return nil, errors.Wrap(err, "middleware: register request counter")
	}
	if err := reg.Register(p.duration); err != nil {
		return nil, errors.Wrap(err, "middleware: register duration histogram")
	}
	return p, nil
}

// Process implements endpoint.Processor.
func (p *MetricsProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r)

	code := strconv.Itoa(rec.statusFor(err))
	p.requests.WithLabelValues(code).Inc()
	p.duration.WithLabelValues(code).Observe(time.Since(start).Seconds())
	return err
}

var _ endpoint.Processor = (*MetricsProcessor)(nil)
