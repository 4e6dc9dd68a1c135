package rpcclient

import (
	"encoding/json"
	"fmt"
	"reflect"

	"jsonrpc-gen/message"
)

// Invoke performs one generated call: params are packed positionally, the
// envelope gets a fresh id from ids, the transport carries it and decode
// turns the answer into T. A transport error resolves the returned future
// unchanged.
func Invoke[T any](t Transport, ids *IDGenerator, method string, decode func(string) (T, error), params ...any) *Future[T] {
	request := EncodeRequest(method, ids, params...)
	return Then(t.Call(request), decode)
}

// InvokeWithMetadata is Invoke for methods that carry session metadata. The
// metadata is handed to the transport when it implements MetadataTransport
// and is otherwise consumed here. It is never serialized into the envelope.
func InvokeWithMetadata[T any](t Transport, ids *IDGenerator, method string, decode func(string) (T, error), meta any, params ...any) *Future[T] {
	request := EncodeRequest(method, ids, params...)
	if mt, ok := t.(MetadataTransport); ok {
		return Then(mt.CallWithMetadata(meta, request), decode)
	}
	return Then(t.Call(request), decode)
}

// EncodeRequest serializes a call envelope. A method without parameters
// still sends an empty array.
//
// Every parameter type comes from a validated method descriptor, so a
// serialization failure is a defect in the descriptor rather than something
// a caller could handle. It panics instead of returning an error.
func EncodeRequest(method string, ids *IDGenerator, params ...any) string {
	if params == nil {
		params = []any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("rpcclient: params of %q are not serializable: %v", method, err))
	}

	data, err := json.Marshal(message.NewRequest(method, raw, ids.Next()))
	if err != nil {
		panic(fmt.Sprintf("rpcclient: request for %q is not serializable: %v", method, err))
	}
	return string(data)
}

// DecodeResponse turns a response string into T or an error. It is total:
//
//   - malformed JSON, a batch array or an envelope without result or error
//     yield a ParseError;
//   - an error envelope yields its *message.Error with code, message and
//     data untouched;
//   - a result that does not fit T yields a ParseError as well, so a type
//     mismatch cannot be told apart from malformed JSON.
func DecodeResponse[T any](response string) (T, error) {
	var zero T

	resp, err := message.ParseResponse([]byte(response))
	if err != nil {
		return zero, err
	}
	if resp.Error != nil {
		return zero, resp.Error
	}

	if string(resp.Result) == "null" && !nullable[T]() {
		return zero, message.NewError(message.ParseError)
	}

	var result T
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return zero, message.NewError(message.ParseError)
	}
	return result, nil
}

// nullable reports whether JSON null is a legal value of T. encoding/json
// silently leaves a non-nullable target untouched on null, which would turn
// a missing value into a zero value.
func nullable[T any]() bool {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	switch typ.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return true
	}
	return false
}
