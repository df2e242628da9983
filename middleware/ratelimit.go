package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/mnehpets/mcpserve/endpoint"
)

// RateLimitProcessor rejects requests over a shared token-bucket budget with
// 429 Too Many Requests.
type RateLimitProcessor struct {
	limiter *rate.Limiter
}

// NewRateLimitProcessor allows rps requests per second with bursts of up to
// burst requests.
func NewRateLimitProcessor(rps float64, burst int) *RateLimitProcessor {
	return &RateLimitProcessor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Process implements endpoint.Processor.
func (p *RateLimitProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	res := p.limiter.Reserve()
	if !res.OK() {
		return rateLimited(1)
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return rateLimited(int(math.Ceil(d.Seconds())))
	}
	return next(w, r)
}

func rateLimited(retryAfter int) error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &endpoint.EndpointError{
		Status: http.StatusTooManyRequests,
		Header: http.Header{"Retry-After": {strconv.Itoa(retryAfter)}},
	}
}

var _ endpoint.Processor = (*RateLimitProcessor)(nil)
