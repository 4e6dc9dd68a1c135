package middleware

import (
	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrRateLimited is the transport error of a call refused by RateLimit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit admits calls through a token bucket of r calls per second with
// the given burst and fails the rest immediately.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next rpcclient.Transport) rpcclient.Transport {
		return rpcclient.TransportFunc(func(request string) *rpcclient.Future[string] {
			if !limiter.Allow() {
				return rpcclient.Failed[string](ErrRateLimited)
			}
			return next.Call(request)
		})
	}
}
