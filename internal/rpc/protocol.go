package rpc

import (
	"encoding/json"

	"github.com/fastsearch/fastsearch/internal/fserr"
)

// JSON-RPC 2.0 error codes, per the spec's error table.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// Request is a JSON-RPC 2.0 call. Params is left raw so each handler
// decodes its own shape.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 reply: exactly one of Result or Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func newResponse(id any, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id any, code int, message string, data map[string]any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

// InvalidParamsError marks a params-decoding failure, mapped to
// JSON-RPC code -32602 instead of the generic -32000.
type InvalidParamsError struct {
	Err error
}

func (e *InvalidParamsError) Error() string { return e.Err.Error() }
func (e *InvalidParamsError) Unwrap() error { return e.Err }

// NewInvalidParamsError wraps err so the dispatcher reports -32602.
func NewInvalidParamsError(err error) error { return &InvalidParamsError{Err: err} }

// errorResponse maps a component-local error to a JSON-RPC error object.
// *fserr.Error carries its Kind through to response.error.data.kind; any
// other error becomes a bare -32000 with no data.
func errorResponse(id any, err error) *Response {
	data := map[string]any{}
	if kind, ok := fserr.KindOf(err); ok {
		data["kind"] = string(kind)
	}
	if len(data) == 0 {
		data = nil
	}
	return newErrorResponse(id, CodeServerError, err.Error(), data)
}
