// Package dispatch executes JSON-RPC requests against a local handler table.
//
// It is the server half that the in-process reference transport, the framed
// TCP server and the websocket handler share:
//
//	request text → ParseRequest → lookup(wire name or alias) → HandlerFunc → response text
//
// Handlers are registered per method descriptor, either one by one with
// Register or all at once from a receiver with RegisterService.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"jsonrpc-gen/logger"
	"jsonrpc-gen/message"
	"jsonrpc-gen/registration"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HandlerFunc serves one call. meta is the session metadata supplied by the
// transport (nil if none), params the raw positional array. Returning a
// *message.Error sends it verbatim; any other error becomes InternalError.
type HandlerFunc func(ctx context.Context, meta any, params json.RawMessage) (any, error)

type handler struct {
	desc registration.MethodDescriptor
	fn   HandlerFunc
}

// Dispatcher is a handler table keyed by wire name and alias. It is safe for
// concurrent use; registration normally happens before serving.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]*handler
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]*handler)}
}

// Register binds fn to the wire name and every alias of desc.
func (d *Dispatcher) Register(desc registration.MethodDescriptor, fn HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := desc.Names()
	for _, name := range names {
		if _, ok := d.handlers[name]; ok {
			return errors.Errorf("dispatch: %q already registered", name)
		}
	}
	h := &handler{desc: desc, fn: fn}
	for _, name := range names {
		d.handlers[name] = h
	}
	return nil
}

// Methods returns the number of distinct registered names.
func (d *Dispatcher) Methods() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

func (d *Dispatcher) lookup(name string) (*handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	return h, ok
}

// Fault is an internal failure of the handler table itself, as opposed to a
// JSON-RPC error sent back to the caller: the request produced no response
// (it was a notification) or its handler panicked.
type Fault struct {
	Method    string
	ID        *uint64 // id of the request, nil for notifications
	Reason    string
	Recovered any // value recovered from a panicking handler
}

func (f *Fault) Error() string {
	return fmt.Sprintf("dispatch fault in %q: %s", f.Method, f.Reason)
}

// Handle executes request and returns the response text. Protocol and
// handler errors are encoded into the response; only a Fault is returned as
// an error.
func (d *Dispatcher) Handle(ctx context.Context, meta any, request string) (string, error) {
	req, rpcErr := message.ParseRequest([]byte(request))
	if rpcErr != nil {
		return encode(message.NewErrorResponse(nil, rpcErr)), nil
	}

	resp, fault := d.call(ctx, meta, req)
	if fault != nil {
		return "", fault
	}
	if req.IsNotification() {
		return "", &Fault{Method: req.Method, Reason: "notification produced no response"}
	}
	return encode(resp), nil
}

func (d *Dispatcher) call(ctx context.Context, meta any, req *message.Request) (resp *message.Response, fault *Fault) {
	h, ok := d.lookup(req.Method)
	if !ok {
		return message.NewErrorResponse(req.ID, message.NewError(message.MethodNotFound)), nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("handler panicked",
				zap.String("method", req.Method), zap.Any("panic", r))
			resp = nil
			fault = &Fault{Method: req.Method, ID: req.ID, Reason: "handler panicked", Recovered: r}
		}
	}()

	result, err := h.fn(ctx, meta, req.Params)
	if err != nil {
		if rpcErr, ok := message.AsError(err); ok {
			return message.NewErrorResponse(req.ID, rpcErr), nil
		}
		logger.L().Debug("handler failed", zap.String("method", req.Method), zap.Error(err))
		return message.NewErrorResponse(req.ID, message.NewErrorf(message.InternalError, "%s", err.Error())), nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return message.NewErrorResponse(req.ID, message.NewErrorf(message.InternalError, "result not serializable: %v", err)), nil
	}
	return message.NewResult(req.ID, raw), nil
}

// ErrorResponse encodes an InternalError reply for a faulted request that
// still expects an answer. Servers use it so that a panicking handler does
// not leave the remote caller waiting.
func ErrorResponse(f *Fault) (string, bool) {
	if f.ID == nil {
		return "", false
	}
	return encode(message.NewErrorResponse(f.ID, message.NewError(message.InternalError))), true
}

func encode(resp *message.Response) string {
	data, err := json.Marshal(resp)
	if err != nil {
		// Response holds only raw JSON and plain fields.
		panic(errors.Wrap(err, "dispatch: encode response"))
	}
	return string(data)
}
