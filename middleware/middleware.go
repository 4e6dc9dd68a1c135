// Package middleware decorates a Transport. Retry, timeout and rate
// policies belong to the transport side of a generated client, never to the
// generated call sites, so they are composed here:
//
//	Chain(Logging(), Retry(3, 50*time.Millisecond), Timeout(time.Second))(framed)
//
// Chain(A, B, C)(t) is A(B(C(t))): A sees the call first and the result last.
package middleware

import (
	"encoding/json"

	"jsonrpc-gen/rpcclient"
)

// Middleware wraps a transport with extra behaviour.
type Middleware func(next rpcclient.Transport) rpcclient.Transport

// Chain combines middlewares into one, the first being the outermost.
// When the wrapped transport accepts session metadata the chained transport
// does too, running the same middlewares around each metadata call.
func Chain(middlewares ...Middleware) Middleware {
	wrap := func(next rpcclient.Transport) rpcclient.Transport {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
	return func(next rpcclient.Transport) rpcclient.Transport {
		if mt, ok := next.(rpcclient.MetadataTransport); ok {
			return &metadataChain{Transport: wrap(next), wrap: wrap, base: mt}
		}
		return wrap(next)
	}
}

type metadataChain struct {
	rpcclient.Transport
	wrap func(rpcclient.Transport) rpcclient.Transport
	base rpcclient.MetadataTransport
}

func (m *metadataChain) CallWithMetadata(meta any, request string) *rpcclient.Future[string] {
	bound := rpcclient.TransportFunc(func(request string) *rpcclient.Future[string] {
		return m.base.CallWithMetadata(meta, request)
	})
	return m.wrap(bound).Call(request)
}

// methodOf extracts the wire name for logging without a full parse.
func methodOf(request string) string {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal([]byte(request), &probe); err != nil {
		return ""
	}
	return probe.Method
}
