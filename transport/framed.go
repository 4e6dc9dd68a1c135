// Package transport implements rpcclient.Transport over real connections.
//
// Framed multiplexes many concurrent calls over a single TCP connection.
// Each request frame gets its own sequence number; one background goroutine
// (recvLoop) reads response frames and settles the matching future.
//
//	goroutine-1 ──Call(seq=1)──┐
//	goroutine-2 ──Call(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Call(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2].Resolve(body) → goroutine-2's future settles
//
// The JSON-RPC id inside the envelope is left alone; frames are matched by
// seq so the transport never has to parse what it carries.
package transport

import (
	"net"
	"sync"
	"time"

	"jsonrpc-gen/logger"
	"jsonrpc-gen/protocol"
	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrClosed is returned by calls made on, or pending on, a closed transport.
var ErrClosed = errors.New("transport: closed")

// DefaultHeartbeat is the keepalive interval used by Dial.
const DefaultHeartbeat = 30 * time.Second

// Framed owns one multiplexed TCP connection.
type Framed struct {
	conn    net.Conn
	seq     uint32     // protected by sending
	sending sync.Mutex // one frame on the wire at a time

	mu      sync.Mutex
	pending map[uint32]*rpcclient.Future[string]
	err     error // set once the connection is gone

	done chan struct{}
}

// Dial connects to addr and starts the receive and heartbeat loops.
func Dial(addr string, timeout time.Duration) (*Framed, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", addr)
	}
	return NewFramed(conn, DefaultHeartbeat), nil
}

// NewFramed takes ownership of conn. A heartbeat of zero disables keepalive
// frames.
func NewFramed(conn net.Conn, heartbeat time.Duration) *Framed {
	t := &Framed{
		conn:    conn,
		pending: make(map[uint32]*rpcclient.Future[string]),
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t
}

// Call writes request as one frame. The future settles with the body of the
// response frame carrying the same seq, or with the connection error.
func (t *Framed) Call(request string) *rpcclient.Future[string] {
	body := []byte(request)
	if len(body) > int(protocol.MaxBodySize) {
		return rpcclient.Failed[string](errors.Errorf("transport: request of %d bytes exceeds frame limit", len(body)))
	}
	future := rpcclient.NewFuture[string]()

	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	// register before writing so recvLoop cannot miss a fast reply
	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		future.Reject(err)
		return future
	}
	t.pending[seq] = future
	t.mu.Unlock()
	future.OnSettled(func(string, error) { t.release(seq, future) })

	header := protocol.Header{
		MsgType: protocol.MsgTypeRequest,
		Seq:     seq,
		BodyLen: uint32(len(body)),
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		// a partial frame leaves the stream unusable
		t.fail(errors.Wrap(err, "transport: write frame"))
		_ = t.conn.Close()
	}
	return future
}

// release forgets seq if it still belongs to future. Calls abandoned by the
// caller (a timeout rejecting the future) are dropped this way; their late
// responses are logged as unknown.
func (t *Framed) release(seq uint32, future *rpcclient.Future[string]) {
	t.mu.Lock()
	if t.pending[seq] == future {
		delete(t.pending, seq)
	}
	t.mu.Unlock()
}

// Pending returns the number of calls waiting for a response.
func (t *Framed) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close shuts the connection down and fails every pending call.
func (t *Framed) Close() error {
	t.fail(ErrClosed)
	return t.conn.Close()
}

// Done is closed once the connection is unusable.
func (t *Framed) Done() <-chan struct{} {
	return t.done
}

// recvLoop is the only reader of the connection.
func (t *Framed) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(errors.Wrap(err, "transport: connection lost"))
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		t.mu.Lock()
		future, ok := t.pending[header.Seq]
		delete(t.pending, header.Seq)
		t.mu.Unlock()

		if !ok {
			logger.L().Warn("response for unknown seq", zap.Uint32("seq", header.Seq))
			continue
		}
		future.Resolve(string(body))
	}
}

// fail records the first error and rejects everything pending with it.
func (t *Framed) fail(err error) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return
	}
	t.err = err
	pending := t.pending
	t.pending = make(map[uint32]*rpcclient.Future[string])
	close(t.done)
	t.mu.Unlock()

	for _, future := range pending {
		future.Reject(err)
	}
}

func (t *Framed) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.fail(errors.Wrap(err, "transport: heartbeat"))
			return
		}
	}
}
