// Package mcp serves the Model Context Protocol's initialize and tools/list
// methods over JSON-RPC.
//
// A Server is a pure function of the request body: it keeps nothing between
// requests. Respond turns a body into a Response; hosts deliver bodies and
// accept responses through an Exchange.
//
// Serve it through the endpoint pipeline:
//
//	srv := mcp.New(mcp.WithServerInfo("my-server", "1.2.3"))
//	http.Handle("/mcp", endpoint.Handler(srv.Endpoint, processors...))
//
// or drive it from any other host:
//
//	err := srv.Handle(ctx, mcp.NewStreamExchange(os.Stdin, os.Stdout))
//
// Wire behavior:
//   - A body that is not a JSON-RPC envelope gets HTTP 400 with the plain-text
//     body "invalid json: <decoder message>" and no Content-Type.
//   - Every parsed request gets HTTP 200 with Content-Type application/json,
//     including requests for unknown methods, which carry error -32601.
//   - The response id is the request id, or null when the request had none.
package mcp
