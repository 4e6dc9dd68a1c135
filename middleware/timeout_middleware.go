package middleware

import (
	"time"

	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
)

// ErrTimeout is the transport error of a call that outlived its timeout.
var ErrTimeout = errors.New("request timed out")

// Timeout fails a call with ErrTimeout when the transport has not answered
// within d. The transport's own future is rejected too, which releases what
// the transport holds for the call (a pending id or seq), so a retry can
// resend the same request. The late answer, if any, is dropped.
func Timeout(d time.Duration) Middleware {
	return func(next rpcclient.Transport) rpcclient.Transport {
		return rpcclient.TransportFunc(func(request string) *rpcclient.Future[string] {
			inner := next.Call(request)
			select {
			case <-inner.Done():
				return inner
			default:
			}

			out := rpcclient.NewFuture[string]()
			go func() {
				timer := time.NewTimer(d)
				defer timer.Stop()

				select {
				case <-inner.Done():
					v, err := inner.Wait()
					if err != nil {
						out.Reject(err)
						return
					}
					out.Resolve(v)
				case <-timer.C:
					inner.Reject(ErrTimeout)
					out.Reject(ErrTimeout)
				}
			}()
			return out
		})
	}
}
