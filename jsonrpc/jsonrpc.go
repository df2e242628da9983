package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Version is the protocol literal written into every response envelope.
const Version = "2.0"

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MessageUnknownMethod is the error message returned for unregistered methods.
const MessageUnknownMethod = "Unknown method"

type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return e.Message
}

func NewError(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}

// MethodFunc handles one JSON-RPC method. params is never empty: a request
// without params (or with null params) is dispatched with an empty object.
//
// The returned value is serialized as the success payload. Returning a
// *JSONRPCError produces that error object; any other error is reported as
// CodeInternalError.
type MethodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Dispatcher is a registry of JSON-RPC methods keyed by exact method name.
//
// Register is expected to be called during setup; Dispatch is safe for
// concurrent use and does not retain anything between calls.
type Dispatcher struct {
	mu      sync.RWMutex
	methods map[string]MethodFunc
	log     *zap.SugaredLogger
}

// NewDispatcher creates an empty method registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		methods: make(map[string]MethodFunc),
		log:     zap.S().With("module", "jsonrpc"),
	}
}

// Register adds fn under name. Names are matched exactly and case-sensitively.
// Registering the same name twice panics.
func (d *Dispatcher) Register(name string, fn MethodFunc) {
	if fn == nil {
		panic("jsonrpc: nil method func: " + name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.methods[name]; exists {
		panic("jsonrpc: method name collision: " + name)
	}
	d.methods[name] = fn
}

// Methods returns the registered method names in sorted order.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch invokes the method registered under method and shapes its outcome
// into a Result. Unregistered methods yield a CodeMethodNotFound error result.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) Result {
	d.mu.RLock()
	fn, ok := d.methods[method]
	d.mu.RUnlock()

	if !ok {
		return Result{Err: NewError(CodeMethodNotFound, MessageUnknownMethod)}
	}
	if len(params) == 0 {
		params = emptyObject
	}

	value, err := d.call(ctx, method, fn, params)
	if err != nil {
		return Result{Err: mapError(err)}
	}
	return Result{Value: value}
}

func (d *Dispatcher) call(ctx context.Context, method string, fn MethodFunc, params json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("method panicked", "method", method, "panic", fmt.Sprint(r))
			err = NewError(CodeInternalError, "internal error")
		}
	}()
	return fn(ctx, params)
}

// mapError converts any error to a JSON-RPC error.
// JSONRPCError types preserve their code; other errors become InternalError.
func mapError(err error) *JSONRPCError {
	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &JSONRPCError{
		Code:    CodeInternalError,
		Message: err.Error(),
	}
}

// Result is the value carried in a response envelope's "result" member.
//
// It serializes as {"result": Value} on success and {"error": Err} when Err is
// set.
type Result struct {
	Value interface{}
	Err   *JSONRPCError
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return encode(struct {
			Error *JSONRPCError `json:"error"`
		}{r.Err})
	}
	return encode(struct {
		Result interface{} `json:"result"`
	}{r.Value})
}

// UnmarshalJSON decodes a result payload. On success Value holds the raw
// json.RawMessage of the inner "result" member.
func (r *Result) UnmarshalJSON(data []byte) error {
	var wire struct {
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Err = wire.Error
	r.Value = nil
	if wire.Error == nil {
		r.Value = wire.Result
	}
	return nil
}

// encode marshals v without HTML escaping and without a trailing newline.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
