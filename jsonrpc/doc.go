// Package jsonrpc implements the JSON-RPC 2.0 envelope handling used by the MCP
// server: request parsing, a method registry, and response assembly.
//
// # Requests
//
// ParseRequest decodes a body into a Request. Invalid UTF-8 is replaced rather
// than rejected. Missing or null params become an empty object; a missing id
// stays absent and is echoed back as null. Any decoding failure is a
// *ParseError carrying the decoder's message.
//
// # Dispatch
//
// Methods are registered by exact name:
//
//	d := jsonrpc.NewDispatcher()
//	d.Register("ping", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
//	    return map[string]string{"pong": "ok"}, nil
//	})
//	res := d.Dispatch(ctx, req.Method, req.Params)
//
// Dispatch never fails. Its Result carries either the method's value or an
// error object. Unregistered names produce CodeMethodNotFound with the message
// "Unknown method".
//
// # Responses
//
// The result member nests the outcome one level deeper than plain JSON-RPC:
//
//	{"jsonrpc":"2.0","result":{"result":...},"id":1}
//	{"jsonrpc":"2.0","result":{"error":{"code":-32601,"message":"Unknown method"}},"id":1}
//
// Marshal produces compact output with members in that order, which makes
// identical inputs serialize to identical bytes.
//
// Standard error codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
package jsonrpc
