package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// Standard JSON-RPC error codes.
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
	ServerError    ErrorCode = -32000
)

// Description returns the canonical message for a standard code.
func (c ErrorCode) Description() string {
	switch c {
	case ParseError:
		return "Parse error"
	case InvalidRequest:
		return "Invalid request"
	case MethodNotFound:
		return "Method not found"
	case InvalidParams:
		return "Invalid params"
	case InternalError:
		return "Internal error"
	case ServerError:
		return "Server error"
	}
	return "Unknown error"
}

// Error is the error member of a failure envelope. Data is opaque and kept
// exactly as the server sent it.
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError returns an error carrying the canonical message for code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.Description()}
}

// NewErrorf returns an error with a custom message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code %d)", e.Message, e.Code)
}

// AsError unwraps err into a wire error, if it is one.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// IsParseError reports whether err is a ParseError raised while decoding a
// response (malformed JSON, batch shape or a result of the wrong type).
func IsParseError(err error) bool {
	rpcErr, ok := AsError(err)
	return ok && rpcErr.Code == ParseError
}
