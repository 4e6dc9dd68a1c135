package transport

import (
	"sync/atomic"
	"time"

	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
)

// Pool spreads calls round-robin over a fixed set of framed connections to
// one address. Each connection is itself multiplexed, so the pool only
// exists to use more than one socket.
type Pool struct {
	conns []*Framed
	next  atomic.Uint64
}

// DialPool opens size connections to addr. If any dial fails the ones
// already opened are closed.
func DialPool(addr string, size int, timeout time.Duration) (*Pool, error) {
	if size < 1 {
		return nil, errors.Errorf("transport: pool size must be positive, got %d", size)
	}
	p := &Pool{conns: make([]*Framed, 0, size)}
	for i := 0; i < size; i++ {
		conn, err := Dial(addr, timeout)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.conns = append(p.conns, conn)
	}
	return p, nil
}

// NewPool builds a pool from already connected transports.
func NewPool(conns ...*Framed) *Pool {
	return &Pool{conns: conns}
}

func (p *Pool) Call(request string) *rpcclient.Future[string] {
	if len(p.conns) == 0 {
		return rpcclient.Failed[string](ErrClosed)
	}
	return p.pick().Call(request)
}

// pick returns the next live connection, falling back to the round-robin
// choice when all of them are down so the caller sees the connection error.
func (p *Pool) pick() *Framed {
	n := uint64(len(p.conns))
	start := p.next.Add(1) - 1
	for i := uint64(0); i < n; i++ {
		conn := p.conns[(start+i)%n]
		select {
		case <-conn.Done():
			continue
		default:
			return conn
		}
	}
	return p.conns[start%n]
}

// Live returns the number of connections that are still usable.
func (p *Pool) Live() int {
	n := 0
	for _, conn := range p.conns {
		select {
		case <-conn.Done():
		default:
			n++
		}
	}
	return n
}

// Size returns the number of connections in the pool.
func (p *Pool) Size() int {
	return len(p.conns)
}

// Close closes every connection and returns the first error.
func (p *Pool) Close() error {
	var first error
	for _, conn := range p.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
