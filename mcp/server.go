package mcp

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mnehpets/mcpserve/endpoint"
	"github.com/mnehpets/mcpserve/jsonrpc"
)

const (
	DefaultServerName    = "rust-mcp-server"
	DefaultServerVersion = "0.1.0"
)

// invalidJSONPrefix starts the plain-text body of a 400 response.
const invalidJSONPrefix = "invalid json: "

// Server answers MCP JSON-RPC requests. It holds no per-request state; one
// Server can serve any number of concurrent requests.
type Server struct {
	info       ServerInfo
	dispatcher *jsonrpc.Dispatcher
	log        *zap.SugaredLogger
}

// Option configures a Server.
type Option func(*Server)

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.info = ServerInfo{Name: name, Version: version}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Server with the initialize and tools/list methods registered.
func New(opts ...Option) *Server {
	s := &Server{
		info:       ServerInfo{Name: DefaultServerName, Version: DefaultServerVersion},
		dispatcher: jsonrpc.NewDispatcher(),
		log:        zap.S().With("module", "mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher.Register(MethodInitialize, s.initialize)
	s.dispatcher.Register(MethodToolsList, s.toolsList)
	return s
}

// Info returns the configured server identity.
func (s *Server) Info() ServerInfo {
	return s.info
}

// Methods returns the names of the methods the server recognizes.
func (s *Server) Methods() []string {
	return s.dispatcher.Methods()
}

// Response is a finished HTTP response: status, headers and body bytes.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Render implements endpoint.Renderer.
func (r *Response) Render(w http.ResponseWriter, req *http.Request) error {
	rr := endpoint.RawRenderer{Status: r.Status, Header: r.Header, Body: r.Body}
	return rr.Render(w, req)
}

// Respond turns one request body into one response.
//
// A body that does not parse yields a 400 with a plain-text body and no
// Content-Type. Everything else, unknown methods included, yields a 200 with
// a JSON-RPC envelope. The returned error is non-nil only when the envelope
// cannot be serialized; no response should be sent in that case.
func (s *Server) Respond(ctx context.Context, body []byte) (*Response, error) {
	req, err := jsonrpc.ParseRequest(body)
	if err != nil {
		s.log.Debugw("rejecting malformed request", "error", err)
		return &Response{
			Status: http.StatusBadRequest,
			Body:   []byte(invalidJSONPrefix + err.Error()),
		}, nil
	}

	result := s.dispatcher.Dispatch(ctx, req.Method, req.Params)
	if result.Err != nil {
		s.log.Debugw("method failed", "method", req.Method, "code", result.Err.Code)
	}

	out, err := jsonrpc.Marshal(jsonrpc.NewResponse(req.ID, result))
	if err != nil {
		return nil, errors.Wrapf(err, "mcp: serialize response for %q", req.Method)
	}
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   out,
	}, nil
}

// Handle serves one exchange with a host: it reads the whole body, computes
// the response and writes it exactly once.
func (s *Server) Handle(ctx context.Context, ex Exchange) error {
	resp, err := s.Respond(ctx, ex.ReadFullBody())
	if err != nil {
		return err
	}
	return ex.WriteResponse(resp.Status, resp.Header, resp.Body)
}

// ServeHTTP implements http.Handler without any processors.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ex := NewHTTPExchange(w, r)
	if err := s.Handle(r.Context(), ex); err != nil {
		s.log.Errorw("request failed", "error", err)
		if ex.Written() {
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type rpcParams struct {
	Body []byte `body:""`
}

// Endpoint is the endpoint function that processes MCP requests.
// Pass to endpoint.Handler() to create an http.Handler.
func (s *Server) Endpoint(_ http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	resp, err := s.Respond(r.Context(), params.Body)
	if err != nil {
		return nil, endpoint.Error(http.StatusInternalServerError, "", err)
	}
	return resp, nil
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status  string     `json:"status"`
	Server  ServerInfo `json:"server"`
	Methods []string   `json:"methods"`
}

// HealthEndpoint reports the server identity and recognized methods.
func (s *Server) HealthEndpoint(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
	return &endpoint.JSONRenderer{Value: HealthStatus{
		Status:  "ok",
		Server:  s.info,
		Methods: s.Methods(),
	}}, nil
}
