package middleware

import (
	"sync"

	"jsonrpc-gen/rpcclient"
)

// Recorder keeps every request text that passed through it.
type Recorder struct {
	mu       sync.Mutex
	requests []string
}

// Middleware returns the recording middleware.
func (r *Recorder) Middleware() Middleware {
	return func(next rpcclient.Transport) rpcclient.Transport {
		return rpcclient.TransportFunc(func(request string) *rpcclient.Future[string] {
			r.mu.Lock()
			r.requests = append(r.requests, request)
			r.mu.Unlock()
			return next.Call(request)
		})
	}
}

// Requests returns a copy of the recorded requests in arrival order.
func (r *Recorder) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}
