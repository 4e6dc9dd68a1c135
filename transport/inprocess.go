package transport

import (
	"context"

	"jsonrpc-gen/dispatch"
	"jsonrpc-gen/logger"
	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// InProcess runs every request on a local dispatcher and hands back an
// already-settled future. It is the reference Transport: no sockets, no
// goroutines, the same dispatcher the network servers use.
type InProcess struct {
	d            *dispatch.Dispatcher
	meta         any
	panicOnFault bool
}

// InProcessOption configures an InProcess transport.
type InProcessOption func(*InProcess)

// WithPanicOnFault makes a dispatch fault abort the caller instead of
// rejecting the future.
func WithPanicOnFault() InProcessOption {
	return func(p *InProcess) { p.panicOnFault = true }
}

// WithMetadata sets the metadata passed to handlers by Call.
func WithMetadata(meta any) InProcessOption {
	return func(p *InProcess) { p.meta = meta }
}

// NewInProcess wraps d. By default handlers see a fresh session whose peer
// is "in-process".
func NewInProcess(d *dispatch.Dispatcher, opts ...InProcessOption) *InProcess {
	p := &InProcess{d: d, meta: dispatch.NewSession("in-process")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *InProcess) Call(request string) *rpcclient.Future[string] {
	return p.CallWithMetadata(p.meta, request)
}

// CallWithMetadata dispatches request with meta as its session metadata.
func (p *InProcess) CallWithMetadata(meta any, request string) *rpcclient.Future[string] {
	response, err := p.d.Handle(context.Background(), meta, request)
	if err != nil {
		var fault *dispatch.Fault
		if errors.As(err, &fault) {
			logger.L().Error("in-process dispatch fault",
				zap.String("method", fault.Method), zap.String("reason", fault.Reason))
			if p.panicOnFault {
				panic(fault)
			}
		}
		return rpcclient.Failed[string](err)
	}
	return rpcclient.Resolved(response)
}
