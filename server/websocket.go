package server

import (
	"context"
	"io"
	"net/http"
	"sync"

	"jsonrpc-gen/dispatch"
	"jsonrpc-gen/logger"
	"jsonrpc-gen/protocol"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler serves d over websocket text messages, one Session per
// connection. Responses may be written out of request order; clients match
// them by id.
func WebSocketHandler(d *dispatch.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.L().Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		serveWebSocket(d, conn)
	})
}

func serveWebSocket(d *dispatch.Dispatcher, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(int64(protocol.MaxBodySize))

	session := dispatch.NewSession(conn.RemoteAddr().String())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.L().Debug("websocket closed", zap.String("session", session.ID), zap.Error(err))
			return
		}

		wg.Add(1)
		go func(request string) {
			defer wg.Done()
			response, ok := respond(ctx, d, session, request)
			if !ok {
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, []byte(response)); err != nil {
				logger.L().Warn("websocket write failed", zap.String("session", session.ID), zap.Error(err))
			}
		}(string(data))
	}
}

// HTTPHandler serves d with one request envelope per POST body. A
// notification is answered with 204 No Content. Bodies are bounded by the
// same limit as frames.
func HTTPHandler(d *dispatch.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(protocol.MaxBodySize)))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		response, ok := respond(r.Context(), d, dispatch.NewSession(r.RemoteAddr), string(body))
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, response)
	})
}

// respond runs one request and turns faults into error replies where the
// caller still waits for one.
func respond(ctx context.Context, d *dispatch.Dispatcher, session dispatch.Session, request string) (string, bool) {
	response, err := d.Handle(ctx, session, request)
	if err == nil {
		return response, true
	}
	fault, ok := err.(*dispatch.Fault)
	if !ok {
		logger.L().Error("dispatch failed", zap.Error(err))
		return "", false
	}
	reply, ok := dispatch.ErrorResponse(fault)
	if ok {
		logger.L().Error("dispatch fault", zap.String("method", fault.Method), zap.String("reason", fault.Reason))
	}
	return reply, ok
}
