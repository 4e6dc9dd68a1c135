package rpcclient

import (
	"context"
	"errors"
	"sync/atomic"
)

var errNilRejection = errors.New("rpcclient: future rejected with a nil error")

// Future is an asynchronous value that resolves exactly once, either to a
// value or to an error, never both.
//
// Readers block on Done (or Await) and only then look at the outcome, so the
// close of done orders the writes before every read.
type Future[T any] struct {
	done    chan struct{}
	settled atomic.Bool
	value   T
	err     error
}

// NewFuture returns an unresolved future. Settle it with Resolve or Reject.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Failed returns a future that already holds err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. It returns false if the future was
// already settled, in which case v is dropped.
func (f *Future[T]) Resolve(v T) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.value = v
	close(f.done)
	return true
}

// Reject settles the future with err. A nil err is replaced so that a
// rejected future never looks successful.
func (f *Future[T]) Reject(err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	if err == nil {
		err = errNilRejection
	}
	f.err = err
	close(f.done)
	return true
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles. It may block forever if the
// transport behind it never answers; use Await to bound the wait.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Await blocks until the future settles or ctx is done. Giving up on the
// wait does not cancel the underlying call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then chains fn onto f. An error in f is propagated unchanged and fn is not
// called. A future that is already settled is chained synchronously, so an
// in-process call stays resolved all the way to the caller.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next := NewFuture[U]()
	settle := func() {
		v, err := f.Wait()
		if err != nil {
			next.Reject(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			next.Reject(err)
			return
		}
		next.Resolve(u)
	}

	select {
	case <-f.done:
		settle()
	default:
		go settle()
	}
	return next
}

// OnSettled calls fn with the outcome once f settles: immediately when it
// already has, otherwise from a new goroutine.
func (f *Future[T]) OnSettled(fn func(T, error)) {
	select {
	case <-f.done:
		fn(f.value, f.err)
	default:
		go func() {
			<-f.done
			fn(f.value, f.err)
		}()
	}
}
