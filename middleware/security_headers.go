package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/mcpserve/endpoint"
)

// SecurityHeadersProcessor sets response headers recommended for a JSON API
// and, optionally, CORS headers for browser-based MCP clients.
//
// Defaults from NewSecurityHeadersProcessor:
//   - HSTS: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Frame-Options: DENY
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cache-Control: no-store
//
// When CORS is configured, preflight (OPTIONS) requests are answered with 204
// and never reach the endpoint.
type SecurityHeadersProcessor struct {
	// HSTS configures the Strict-Transport-Security header. Nil disables it.
	HSTS *HSTSConfig

	// ReferrerPolicy sets the Referrer-Policy header. Empty disables it.
	ReferrerPolicy string

	// FrameOptions sets the X-Frame-Options header. Empty disables it.
	FrameOptions string

	// ContentTypeOptions sets X-Content-Type-Options: nosniff.
	ContentTypeOptions bool

	// ContentSecurityPolicy sets the Content-Security-Policy header. Empty disables it.
	ContentSecurityPolicy string

	// CacheControl sets the Cache-Control header. Empty disables it.
	CacheControl string

	// CORS configures Cross-Origin Resource Sharing headers. Nil disables them.
	CORS *CORSConfig
}

// HSTSConfig configures HTTP Strict Transport Security.
type HSTSConfig struct {
	// MaxAge is the lifetime of the policy in seconds.
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. "*" allows any
	// origin unless AllowCredentials is set.
	AllowedOrigins []string

	// AllowedMethods is sent on preflight responses.
	AllowedMethods []string

	// AllowedHeaders is sent on preflight responses.
	AllowedHeaders []string

	// ExposedHeaders lists response headers readable by the caller.
	ExposedHeaders []string

	AllowCredentials bool

	// MaxAge is how long (in seconds) preflight results may be cached.
	MaxAge int
}

// NewMCPCORSConfig returns a CORSConfig suited to MCP clients for the given
// origins.
func NewMCPCORSConfig(origins ...string) *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Protocol-Version"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         3600,
	}
}

// SecurityHeadersOption is a functional option for configuring SecurityHeadersProcessor.
type SecurityHeadersOption func(*SecurityHeadersProcessor)

// NewSecurityHeadersProcessor creates a SecurityHeadersProcessor with API defaults.
func NewSecurityHeadersProcessor(opts ...SecurityHeadersOption) *SecurityHeadersProcessor {
	p := &SecurityHeadersProcessor{
		HSTS: &HSTSConfig{
			MaxAge:            31536000, // 1 year
			IncludeSubDomains: true,
		},
		ReferrerPolicy:        "no-referrer",
		FrameOptions:          "DENY",
		ContentTypeOptions:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		CacheControl:          "no-store",
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithHSTS configures HSTS settings.
func WithHSTS(maxAge int, includeSubDomains, preload bool) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = &HSTSConfig{
			MaxAge:            maxAge,
			IncludeSubDomains: includeSubDomains,
			Preload:           preload,
		}
	}
}

// WithoutHSTS disables HSTS headers.
func WithoutHSTS() SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = nil
	}
}

// WithCacheControl sets the Cache-Control header.
func WithCacheControl(value string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.CacheControl = value
	}
}

// WithCORS configures CORS headers for cross-origin access.
func WithCORS(config *CORSConfig) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.CORS = config
	}
}

// Process implements endpoint.Processor.
func (p *SecurityHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if hsts := formatHSTS(p.HSTS); hsts != "" {
		h.Set("Strict-Transport-Security", hsts)
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	if p.FrameOptions != "" {
		h.Set("X-Frame-Options", p.FrameOptions)
	}
	if p.ContentTypeOptions {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.CacheControl != "" {
		h.Set("Cache-Control", p.CacheControl)
	}

	if p.CORS != nil {
		setCORSHeaders(w, r, p.CORS)

		// A preflight request is an OPTIONS request with an Origin and
		// Access-Control-Request-Method.
		if r.Method == http.MethodOptions &&
			r.Header.Get("Origin") != "" &&
			r.Header.Get("Access-Control-Request-Method") != "" {
			return endpoint.Error(http.StatusNoContent, "", nil)
		}
	}

	return next(w, r)
}

// formatHSTS formats the HSTS header value.
func formatHSTS(config *HSTSConfig) string {
	if config == nil || config.MaxAge <= 0 {
		return ""
	}

	parts := []string{"max-age=" + strconv.Itoa(config.MaxAge)}
	if config.IncludeSubDomains {
		parts = append(parts, "includeSubDomains")
	}
	if config.Preload {
		parts = append(parts, "preload")
	}
	return strings.Join(parts, "; ")
}

// setCORSHeaders sets CORS headers for cross-origin requests (those carrying
// an Origin header).
func setCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	h := w.Header()
	h.Add("Vary", "Origin")

	for _, allowed := range config.AllowedOrigins {
		if allowed == "*" {
			// '*' with credentials is forbidden by CORS.
			if config.AllowCredentials {
				continue
			}
			h.Set("Access-Control-Allow-Origin", "*")
			break
		}
		if allowed == origin {
			h.Set("Access-Control-Allow-Origin", origin)
			break
		}
	}

	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(config.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
	}

	if r.Method == http.MethodOptions {
		if len(config.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
		}
		if len(config.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
		}
		if config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}
	}
}

var _ endpoint.Processor = (*SecurityHeadersProcessor)(nil)
