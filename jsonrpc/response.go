package jsonrpc

import (
	"encoding/json"
)

// Response is a JSON-RPC response envelope. Members serialize in declaration
// order; a nil ID serializes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  Result          `json:"result"`
	ID      json.RawMessage `json:"id"`
}

// NewResponse wraps result into an envelope that echoes id.
func NewResponse(id json.RawMessage, result Result) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// Marshal serializes resp as compact JSON without HTML escaping and without a
// trailing newline.
func Marshal(resp *Response) ([]byte, error) {
	return encode(resp)
}
