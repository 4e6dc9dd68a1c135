package middleware

import (
	"strings"
	"time"

	"jsonrpc-gen/logger"
	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Retryable reports whether a transport error is worth another attempt:
// timeouts and refused connections.
func Retryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// Retry resends a request up to maxRetries times while the transport fails
// with a Retryable error, backing off exponentially from baseDelay. The same
// request text, id included, is resent, so the remote side may see a call
// more than once.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next rpcclient.Transport) rpcclient.Transport {
		return rpcclient.TransportFunc(func(request string) *rpcclient.Future[string] {
			out := rpcclient.NewFuture[string]()

			var attempt func(i int)
			attempt = func(i int) {
				next.Call(request).OnSettled(func(resp string, err error) {
					if err == nil {
						out.Resolve(resp)
						return
					}
					if i >= maxRetries || !Retryable(err) {
						out.Reject(err)
						return
					}
					logger.L().Info("retrying call",
						zap.String("method", methodOf(request)), zap.Int("attempt", i+1), zap.Error(err))
					time.AfterFunc(baseDelay*time.Duration(1<<i), func() { attempt(i + 1) })
				})
			}
			attempt(0)
			return out
		})
	}
}
