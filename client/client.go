// Package client calls an MCP JSON-RPC endpoint over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mnehpets/mcpserve/jsonrpc"
	"github.com/mnehpets/mcpserve/mcp"
)

// maxErrorBody caps how much of a non-200 body is kept in a StatusError.
const maxErrorBody = 4096

// StatusError is returned when the server answers with a status other than
// 200 OK.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := "client: http status " + strconv.Itoa(e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client sends JSON-RPC requests to a single MCP endpoint URL.
type Client struct {
	url    string
	http   *http.Client
	header http.Header

	ts  oauth2.TokenSource
	ccc *clientcredentials.Config
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource attaches bearer tokens from ts to every request.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.ts = ts
	}
}

// WithClientCredentials fetches bearer tokens with the OAuth 2.0 client
// credentials grant.
func WithClientCredentials(cfg *clientcredentials.Config) Option {
	return func(c *Client) {
		c.ccc = cfg
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// New creates a Client for url.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("client: missing url")
	}
	c := &Client{
		url:    url,
		http:   http.DefaultClient,
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.ts != nil && c.ccc != nil:
		return nil, errors.New("client: token source and client credentials are mutually exclusive")
	case c.ccc != nil:
		// The token endpoint is reached through the base client.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
		c.ts = c.ccc.TokenSource(ctx)
	}
	if c.ts != nil {
		base := c.http.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc := *c.http
		hc.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, c.ts), Base: base}
		c.http = &hc
	}
	return c, nil
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      string      `json:"id"`
}

// Call sends one request and returns the raw success payload. A JSON-RPC
// error is returned as *jsonrpc.JSONRPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	body, err := json.Marshal(request{JSONRPC: jsonrpc.Version, Method: method, Params: params, ID: id})
	if err != nil {
		return nil, errors.Wrapf(err, "client: encode %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "client: build request")
	}
	for k, vs := range c.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "client: %s", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var env jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrapf(err, "client: decode %s response", method)
	}
	var gotID string
	if err := json.Unmarshal(env.ID, &gotID); err != nil || gotID != id {
		return nil, errors.Newf("client: response id %s does not match request id %q", string(env.ID), id)
	}
	if env.Result.Err != nil {
		return nil, env.Result.Err
	}
	raw, _ := env.Result.Value.(json.RawMessage)
	return raw, nil
}

// Initialize calls initialize with params.
func (c *Client) Initialize(ctx context.Context, params interface{}) (*mcp.InitializeResult, error) {
	var res mcp.InitializeResult
	if err := c.callInto(ctx, mcp.MethodInitialize, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTools calls tools/list.
func (c *Client) ListTools(ctx context.Context) (*mcp.ToolsListResult, error) {
	var res mcp.ToolsListResult
	if err := c.callInto(ctx, mcp.MethodToolsList, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) callInto(ctx context.Context, method string, params, dst interface{}) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "client: decode %s result", method)
	}
	return nil
}
