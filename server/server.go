// Package server exposes a dispatch.Dispatcher to remote clients.
//
// Server speaks the framed TCP protocol:
//
//	Accept conn → handleConn (single goroutine reads frames, one Session per conn)
//	  → for each request frame: go handleRequest (parallel processing)
//	    → Dispatcher.Handle → response frame with the request's seq
//
// WebSocketHandler and HTTPHandler serve the same dispatcher over
// net/http.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"jsonrpc-gen/dispatch"
	"jsonrpc-gen/logger"
	"jsonrpc-gen/protocol"
	"jsonrpc-gen/registry"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Server serves one dispatcher on one listener.
type Server struct {
	d        *dispatch.Dispatcher
	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool

	registry      registry.Registry
	serviceName   string
	advertiseAddr string // routable address, unlike a ":8080" listen address
	ttl           int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry registers the server as serviceName at advertiseAddr when it
// starts serving and deregisters it on Shutdown.
func WithRegistry(reg registry.Registry, serviceName, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.serviceName = serviceName
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

// NewServer creates a server for d.
func NewServer(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{d: d, conns: make(map[net.Conn]struct{}), ttl: 10}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens on address and serves until Shutdown.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrapf(err, "server: listen %s", address)
	}
	return s.ServeListener(listener)
}

// ServeListener serves on an existing listener until Shutdown. It returns
// nil after a clean shutdown.
func (s *Server) ServeListener(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.registry.Register(ctx, s.serviceName, registry.ServiceInstance{Addr: s.advertiseAddr, Weight: 1}, s.ttl)
		cancel()
		if err != nil {
			listener.Close()
			return errors.Wrap(err, "server: register")
		}
	}

	logger.L().Info("serving", zap.String("addr", listener.Addr().String()), zap.Int("names", s.d.Methods()))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "server: accept")
		}
		s.track(conn, true)
		go s.handleConn(conn)
	}
}

// Addr returns the listener address once serving has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConn is the only reader of conn. Every request runs on its own
// goroutine; writeMu keeps their response frames from interleaving.
func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.track(conn, false)
		conn.Close()
	}()

	session := dispatch.NewSession(conn.RemoteAddr().String())
	log := logger.L().With(zap.String("session", session.ID), zap.String("peer", session.Peer))
	log.Debug("connection opened")

	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			log.Debug("connection closed", zap.Error(err))
			return
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}

		s.wg.Add(1)
		go s.handleRequest(session, header.Seq, body, conn, writeMu)
	}
}

func (s *Server) handleRequest(session dispatch.Session, seq uint32, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer s.wg.Done()

	response, ok := respond(context.Background(), s.d, session, string(body))
	if !ok {
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	replyHeader := protocol.Header{
		MsgType: protocol.MsgTypeResponse,
		Seq:     seq,
		BodyLen: uint32(len(response)),
	}
	if err := protocol.Encode(conn, &replyHeader, []byte(response)); err != nil {
		logger.L().Warn("write response failed", zap.Uint32("seq", seq), zap.Error(err))
	}
}

// Shutdown stops the server gracefully:
//  1. deregister, so clients stop routing here
//  2. close the listener
//  3. wait up to timeout for in-flight requests
//  4. close the remaining connections
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registry.Deregister(ctx, s.serviceName, s.advertiseAddr); err != nil {
			logger.L().Warn("deregister failed", zap.Error(err))
		}
		cancel()
	}

	// flag first so Serve treats the Accept error as intentional
	s.shutdown.Store(true)
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("server: timeout waiting for ongoing requests to finish")
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return err
}
