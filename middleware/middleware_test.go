package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"jsonrpc-gen/rpcclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addRequest = `{"jsonrpc":"2.0","method":"add","params":[1,2],"id":0}`

// echo answers immediately with a fixed response.
var echo = rpcclient.TransportFunc(func(string) *rpcclient.Future[string] {
	return rpcclient.Resolved(`{"jsonrpc":"2.0","result":3,"id":0}`)
})

// slow answers after 200ms.
var slow = rpcclient.TransportFunc(func(string) *rpcclient.Future[string] {
	f := rpcclient.NewFuture[string]()
	time.AfterFunc(200*time.Millisecond, func() { f.Resolve(`{"jsonrpc":"2.0","result":3,"id":0}`) })
	return f
})

func TestLogging(t *testing.T) {
	resp, err := Logging()(echo).Call(addRequest).Wait()
	require.NoError(t, err)
	assert.Contains(t, resp, `"result":3`)
}

func TestTimeoutPass(t *testing.T) {
	_, err := Timeout(500 * time.Millisecond)(slow).Call(addRequest).Wait()
	assert.NoError(t, err)
}

func TestTimeoutExceeded(t *testing.T) {
	_, err := Timeout(50 * time.Millisecond)(slow).Call(addRequest).Wait()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTimeoutAbandonsInnerCall(t *testing.T) {
	inner := rpcclient.NewFuture[string]()
	hung := rpcclient.TransportFunc(func(string) *rpcclient.Future[string] { return inner })

	_, err := Timeout(20 * time.Millisecond)(hung).Call(addRequest).Wait()
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = inner.Wait()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is refused
	tr := RateLimit(1, 2)(echo)
	for i := 0; i < 2; i++ {
		_, err := tr.Call(addRequest).Wait()
		require.NoError(t, err, "request %d", i)
	}
	_, err := tr.Call(addRequest).Wait()
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	flaky := rpcclient.TransportFunc(func(string) *rpcclient.Future[string] {
		if calls.Add(1) < 3 {
			return rpcclient.Failed[string](errors.New("dial tcp 127.0.0.1:1: connect: connection refused"))
		}
		return rpcclient.Resolved(`{"jsonrpc":"2.0","result":3,"id":0}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Retry(3, time.Millisecond)(flaky).Call(addRequest).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	broken := rpcclient.TransportFunc(func(string) *rpcclient.Future[string] {
		calls.Add(1)
		return rpcclient.Failed[string](ErrTimeout)
	})

	_, err := Retry(2, time.Millisecond)(broken).Call(addRequest).Wait()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(3), calls.Load())

	permanent := errors.New("no route")
	calls.Store(0)
	fatal := rpcclient.TransportFunc(func(string) *rpcclient.Future[string] {
		calls.Add(1)
		return rpcclient.Failed[string](permanent)
	})
	_, err = Retry(5, time.Millisecond)(fatal).Call(addRequest).Wait()
	assert.Same(t, permanent, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChainOrderAndRecorder(t *testing.T) {
	var rec Recorder
	tr := Chain(Logging(), rec.Middleware(), Timeout(500*time.Millisecond))(echo)

	_, err := tr.Call(addRequest).Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{addRequest}, rec.Requests())
}

type metaEcho struct{ meta any }

func (m *metaEcho) Call(request string) *rpcclient.Future[string] {
	return echo.Call(request)
}

func (m *metaEcho) CallWithMetadata(meta any, request string) *rpcclient.Future[string] {
	m.meta = meta
	return echo.Call(request)
}

func TestChainKeepsMetadata(t *testing.T) {
	var rec Recorder
	base := &metaEcho{}
	tr := Chain(rec.Middleware())(base)

	mt, ok := tr.(rpcclient.MetadataTransport)
	require.True(t, ok)
	_, err := mt.CallWithMetadata("session-1", addRequest).Wait()
	require.NoError(t, err)
	assert.Equal(t, "session-1", base.meta)
	assert.Len(t, rec.Requests(), 1)
}

func TestMethodOf(t *testing.T) {
	assert.Equal(t, "add", methodOf(addRequest))
	assert.Equal(t, "", methodOf("{"))
}
