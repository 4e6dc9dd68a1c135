// Package message defines the JSON-RPC 2.0 envelopes exchanged between a
// generated client and a server.
//
// A Request is built once per call and discarded after it is sent. A Response
// is always a single object from the client's point of view: a batch array is
// a protocol violation and is reported as a parse error.
//
//	Request:   {"jsonrpc":"2.0","method":"add","params":[2,3],"id":0}
//	Response:  {"jsonrpc":"2.0","result":5,"id":0}
//	           {"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":null}
package message

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Version is the only protocol version this package speaks.
const Version = "2.0"

// Request is a JSON-RPC 2.0 call. Field order matches the wire layout.
//
//   - ID is nil for notifications, which never receive a response.
//   - Params holds the serialized positional argument array.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
}

// NewRequest builds a call envelope with the given wire name, params and id.
func NewRequest(method string, params json.RawMessage, id uint64) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
		ID:      &id,
	}
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC 2.0 reply to a single call.
//
// Result is nil when the member is absent and the literal `null` when the
// server returned null. ID is kept raw because servers may echo null (for
// errors raised before the id could be read) or a string id.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// NewResult builds a success envelope for the given request id.
func NewResult(id *uint64, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: encodeID(id)}
}

// NewErrorResponse builds a failure envelope. A nil id is encoded as null.
func NewErrorResponse(id *uint64, err *Error) *Response {
	return &Response{JSONRPC: Version, Error: err, ID: encodeID(id)}
}

// NumericID returns the echoed id when it is an unsigned integer.
func (r *Response) NumericID() (uint64, bool) {
	if len(r.ID) == 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(string(r.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func encodeID(id *uint64) json.RawMessage {
	if id == nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(strconv.FormatUint(*id, 10))
}

// ParseResponse parses a single response envelope.
//
// Malformed JSON, a batch-shaped array and an object carrying neither result
// nor error all yield a ParseError. When both members are present the error
// wins.
func ParseResponse(data []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, NewError(ParseError)
	}

	var resp Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, NewError(ParseError)
	}
	if resp.Error == nil && resp.Result == nil {
		return nil, NewError(ParseError)
	}
	return &resp, nil
}

// ParseRequest parses a single request envelope. Batches are rejected with
// InvalidRequest since only single calls are served.
func ParseRequest(data []byte) (*Request, *Error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, NewErrorf(InvalidRequest, "batch requests are not supported")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, NewError(ParseError)
	}
	if req.JSONRPC != Version || req.Method == "" {
		return nil, NewError(InvalidRequest)
	}
	return &req, nil
}
