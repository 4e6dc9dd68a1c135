package middleware

import (
	"time"

	"jsonrpc-gen/logger"
	"jsonrpc-gen/rpcclient"

	"go.uber.org/zap"
)

// Logging logs every call with its wire name and duration once the
// transport answers. Transport failures are logged at warn level.
func Logging() Middleware {
	return func(next rpcclient.Transport) rpcclient.Transport {
		return rpcclient.TransportFunc(func(request string) *rpcclient.Future[string] {
			start := time.Now()
			method := methodOf(request)

			f := next.Call(request)
			f.OnSettled(func(_ string, err error) {
				fields := []zap.Field{zap.String("method", method), zap.Duration("duration", time.Since(start))}
				if err != nil {
					logger.L().Warn("call failed", append(fields, zap.Error(err))...)
					return
				}
				logger.L().Debug("call completed", fields...)
			})
			return f
		})
	}
}
