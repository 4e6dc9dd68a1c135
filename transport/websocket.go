package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"jsonrpc-gen/logger"
	"jsonrpc-gen/rpcclient"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WebSocket carries JSON-RPC envelopes as text messages. Unlike Framed there
// is no frame header, so responses are matched to callers by the id the
// server echoes back.
//
// Ids are only unique per generated interface: every interface numbers its
// calls from 0. A WebSocket must therefore carry the calls of one generated
// client interface; give each interface its own connection. A request whose
// id is still in flight is refused. A call that settles without an answer
// (for example rejected by a timeout) gives its id back.
type WebSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*rpcclient.Future[string]
	err     error
	done    chan struct{}
}

// DialWebSocket connects to url (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil) //nolint:bodyclose // websocket connection, not HTTP response
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", url)
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket takes ownership of an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	w := &WebSocket{
		conn:    conn,
		pending: make(map[uint64]*rpcclient.Future[string]),
		done:    make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocket) Call(request string) *rpcclient.Future[string] {
	var envelope struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(request), &envelope); err != nil {
		return rpcclient.Failed[string](errors.Wrap(err, "transport: request is not an envelope"))
	}
	if envelope.ID == nil {
		return rpcclient.Failed[string](errors.New("transport: request carries no id"))
	}
	id := *envelope.ID

	future := rpcclient.NewFuture[string]()
	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return rpcclient.Failed[string](err)
	}
	if old, dup := w.pending[id]; dup && !settled(old) {
		w.mu.Unlock()
		return rpcclient.Failed[string](errors.Errorf("transport: id %d already in flight", id))
	}
	w.pending[id] = future
	w.mu.Unlock()
	future.OnSettled(func(string, error) { w.release(id, future) })

	w.writeMu.Lock()
	err := w.conn.WriteMessage(websocket.TextMessage, []byte(request))
	w.writeMu.Unlock()
	if err != nil {
		future.Reject(errors.Wrap(err, "transport: websocket write"))
	}
	return future
}

func settled(f *rpcclient.Future[string]) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

// release forgets id if it still belongs to future.
func (w *WebSocket) release(id uint64, future *rpcclient.Future[string]) {
	w.mu.Lock()
	if w.pending[id] == future {
		delete(w.pending, id)
	}
	w.mu.Unlock()
}

// Close sends a close frame, drops the connection and fails pending calls.
func (w *WebSocket) Close() error {
	w.fail(ErrClosed)
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}

func (w *WebSocket) readLoop() {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.fail(errors.Wrap(err, "transport: websocket read"))
			return
		}

		var envelope struct {
			ID *uint64 `json:"id"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.ID == nil {
			// null id: the server could not read the request it answers
			logger.L().Warn("uncorrelated websocket message", zap.ByteString("message", data))
			continue
		}

		w.mu.Lock()
		future, ok := w.pending[*envelope.ID]
		delete(w.pending, *envelope.ID)
		w.mu.Unlock()
		if !ok {
			logger.L().Warn("response for unknown id", zap.Uint64("id", *envelope.ID))
			continue
		}
		future.Resolve(string(data))
	}
}

func (w *WebSocket) fail(err error) {
	w.mu.Lock()
	if w.err != nil {
		w.mu.Unlock()
		return
	}
	w.err = err
	pending := w.pending
	w.pending = make(map[uint64]*rpcclient.Future[string])
	close(w.done)
	w.mu.Unlock()

	for _, future := range pending {
		future.Reject(err)
	}
}

// Done is closed once the connection is unusable.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}
