package jsonrpc

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

var emptyObject = json.RawMessage(`{}`)

// Request is a decoded JSON-RPC request envelope.
type Request struct {
	// JSONRPC is carried for information only; its value is not checked.
	JSONRPC string
	Method  string
	// Params is the raw params value. It is `{}` when the request omits
	// params or sends null.
	Params json.RawMessage
	// ID is the raw id value, or nil when the request has no id member.
	ID json.RawMessage
}

// HasID reports whether the request carried an id member.
func (r *Request) HasID() bool {
	return len(r.ID) > 0
}

// ParseError reports a body that could not be decoded into a Request.
// Its message is the underlying decoder's message.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	if e == nil || e.Err == nil {
		return "parse error"
	}
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// envelope is the wire shape; pointers distinguish missing members.
type envelope struct {
	JSONRPC *string         `json:"jsonrpc"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// ParseRequest decodes body into a Request.
//
// Each ill-formed UTF-8 subsequence in body is replaced with U+FFFD before
// decoding. The body must be a single JSON object with string "jsonrpc" and
// "method" members; members other than jsonrpc, method, params and id are
// ignored, and a repeated member keeps its last value.
func ParseRequest(body []byte) (*Request, error) {
	body = toValidUTF8(body)

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParseError{Err: err}
	}
	if env.JSONRPC == nil {
		return nil, &ParseError{Err: errors.New(`missing field "jsonrpc"`)}
	}
	if env.Method == nil {
		return nil, &ParseError{Err: errors.New(`missing field "method"`)}
	}

	req := &Request{
		JSONRPC: *env.JSONRPC,
		Method:  *env.Method,
		Params:  env.Params,
		ID:      env.ID,
	}
	if len(req.Params) == 0 || bytes.Equal(req.Params, []byte("null")) {
		req.Params = emptyObject
	}
	return req, nil
}
