// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/keyfold/keyfold/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc handles a long-lived streaming action. The raw parameter
// is the full CBOR request; conn is the accepted connection, which the
// handler owns until it returns. The handler writes an acknowledgment
// envelope ({ok: true} or {ok: false, error: ...}) before its first
// frame so clients can distinguish an established stream from a
// rejection. The server closes the connection after the handler
// returns.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error;
// the server wraps these into a Response before encoding. Stream
// handlers reuse the same shape for their acknowledgment, so a client
// reads one envelope regardless of whether routing or the handler
// rejected the request.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Server serves the keyfold daemon protocol on a Unix socket. Plain
// actions handle exactly one request-response cycle per connection;
// stream actions hold the connection for as long as the client stays
// subscribed.
//
// Actions are registered with Handle and HandleStream before calling
// Serve. Unknown actions receive an error response.
type Server struct {
	socketPath     string
	handlers       map[string]ActionFunc
	streamHandlers map[string]StreamFunc
	logger         *slog.Logger

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. Serve waits for all active connections, including
	// open streams, to complete before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath. Register
// actions with Handle and HandleStream before calling Serve.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath:     socketPath,
		handlers:       make(map[string]ActionFunc),
		streamHandlers: make(map[string]StreamFunc),
		logger:         logger,
	}
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered, as plain or stream.
func (s *Server) Handle(action string, handler ActionFunc) {
	s.checkUnregistered(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming handler for the given action
// name. Panics if the action is already registered, as plain or
// stream.
func (s *Server) HandleStream(action string, handler StreamFunc) {
	s.checkUnregistered(action)
	s.streamHandlers[action] = handler
}

func (s *Server) checkUnregistered(action string) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("socket.Server: duplicate handler for action %q", action))
	}
	if _, exists := s.streamHandlers[action]; exists {
		panic(fmt.Sprintf("socket.Server: duplicate handler for action %q", action))
	}
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

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

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request.
// 1 MB bounds a request; sealed item payloads are a few KB in
// practice, so this leaves ample headroom.
const maxRequestSize = 1024 * 1024

// handleConnection routes one decoded request to its handler. Plain
// actions complete a single request-response cycle; stream actions
// hand the connection to the handler for its lifetime.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if handler, exists := s.streamHandlers[header.Action]; exists {
		// The request read deadline no longer applies; the stream
		// handler owns all reads and writes from here on.
		conn.SetReadDeadline(time.Time{})
		handler(ctx, []byte(raw), conn)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level; the connection is closing
// regardless, and the caller has already received the error.
func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
