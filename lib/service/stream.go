// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// ConnHandler processes one stream connection. The handler owns the
// connection for its lifetime: it reads the hello, writes the ack,
// and then runs the subscribe or ingest loop. The handler must
// return when ctx is cancelled or the connection fails; the server
// closes the connection after the handler returns.
type ConnHandler func(ctx context.Context, conn net.Conn)

// StreamServer serves long-lived connections on a TCP listener. Used
// by the brewshed server for the CBOR telemetry stream: devices hold
// an ingest connection open and push frames; dashboards hold a
// subscribe connection open and receive events.
//
// Unlike HTTPServer, connections here live until one side hangs up.
// On shutdown the server closes the listener and every open
// connection, which unblocks handlers stuck in Read, then waits for
// all handlers to return.
type StreamServer struct {
	address string
	handler ConnHandler
	logger  *slog.Logger

	// ready is closed after the listener is bound and the server
	// is accepting connections.
	ready chan struct{}

	// addr is the resolved listen address, available after ready
	// is closed.
	addr net.Addr

	// connsMu guards conns and closing. Open connections are tracked
	// so shutdown can close them and unblock their handlers.
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool

	activeConnections sync.WaitGroup
}

// StreamServerConfig configures a StreamServer.
type StreamServerConfig struct {
	// Address is the TCP listen address. Required.
	Address string

	// Handler runs once per accepted connection. Required.
	Handler ConnHandler

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewStreamServer creates a server that will listen on the configured
// TCP address. Call Serve to start accepting connections.
func NewStreamServer(config StreamServerConfig) *StreamServer {
	if config.Address == "" {
		panic("service.StreamServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.StreamServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.StreamServer: Logger is required")
	}

	return &StreamServer{
		address: config.Address,
		handler: config.Handler,
		logger:  config.Logger,
		ready:   make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound
// and accepting connections.
func (s *StreamServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (s *StreamServer) Addr() net.Addr {
	return s.addr
}

// Serve starts accepting stream connections and runs the handler for
// each one. Blocks until ctx is cancelled, then closes the listener
// and all open connections and waits for handlers to return.
func (s *StreamServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// Unblock Accept and any handler stuck in Read when the
	// context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeAll()
	}()

	s.logger.Info("stream server listening", "address", s.addr.String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.track(conn)
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			defer conn.Close()
			s.handler(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("stream server stopped")
	return nil
}

// track registers a connection for shutdown. A connection accepted in
// the instant between cancellation and the listener close lands here
// after closeAll already ran; closing it under the same mutex keeps
// its handler from blocking in Read past shutdown.
func (s *StreamServer) track(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closing {
		conn.Close()
	}
	s.conns[conn] = struct{}{}
}

func (s *StreamServer) untrack(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

// closeAll closes every tracked connection. Handlers blocked in Read
// get an error and return, letting Serve's WaitGroup drain.
func (s *StreamServer) closeAll() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
}
