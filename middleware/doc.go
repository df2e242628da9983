// Package middleware holds endpoint.Processor implementations shared by the
// MCP HTTP surface: response headers, request logging, metrics, tracing, rate
// limiting and body size limits.
package middleware
