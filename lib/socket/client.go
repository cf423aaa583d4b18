// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package socket

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/keyfold/keyfold/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// daemon socket. This is separate from the server's read/write
// timeouts; it covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the server to
// send a response after writing the request. Matched to the server's
// readTimeout + writeTimeout to account for handler execution time.
const responseReadTimeout = 45 * time.Second

// maxResponseSize is the maximum size of a single CBOR response.
// Matches the server's maxRequestSize for symmetry.
const maxResponseSize = 1024 * 1024

// DaemonError is returned by Call and Stream when the daemon responds
// with ok=false. It wraps the daemon's error message and the action
// that failed.
type DaemonError struct {
	Action  string
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon error on %q: %s", e.Action, e.Message)
}

// Client sends CBOR requests to the keyfold daemon socket. Each Call
// opens a new connection (matching the server's one-request-per-
// connection model), sends the request, reads the response, and
// closes the connection. Stream opens a connection that stays open
// for the lifetime of the streaming action.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends a CBOR request to the daemon and decodes the response.
//
// The fields parameter may contain any handler-specific request
// fields; the client adds "action" automatically. Pass nil for
// actions that take no additional parameters. The caller must not
// include an "action" key in the fields map.
//
// On success (response ok=true), if result is non-nil and the
// response contains data, the data is CBOR-decoded into result.
//
// On failure (response ok=false), returns a *DaemonError containing
// the daemon's error message. Connection and encoding errors are
// returned as plain errors (not *DaemonError).
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := buildRequest(action, fields)

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &DaemonError{
			Action:  action,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// Stream connects to the daemon and starts the named streaming action.
// The request is built exactly as for Call. The daemon confirms the
// stream with an acknowledgment envelope before its first frame;
// Stream consumes the acknowledgment and returns the connection ready
// for frame decoding. Routing failures and handler rejections share
// the envelope shape, so both surface as *DaemonError here.
//
// The returned connection has no read deadline: streaming actions are
// long-lived and send periodic heartbeat frames. The caller owns the
// connection and must close it.
func (c *Client) Stream(ctx context.Context, action string, fields map[string]any) (net.Conn, error) {
	request := buildRequest(action, fields)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing %q request: %w", action, err)
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var ack Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading %q acknowledgment: %w", action, err)
	}
	if !ack.OK {
		conn.Close()
		return nil, &DaemonError{
			Action:  action,
			Message: ack.Error,
		}
	}

	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// buildRequest constructs the CBOR request map. Starts with the
// caller's fields (if any), then injects "action".
func buildRequest(action string, fields map[string]any) map[string]any {
	var request map[string]any
	if fields != nil {
		request = make(map[string]any, len(fields)+1)
		for key, value := range fields {
			request[key] = value
		}
	} else {
		request = make(map[string]any, 1)
	}

	request["action"] = action
	return request
}

// send connects to the socket, writes the request, and reads the
// response. Each call creates a new connection.
func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Write the request.
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side. CBOR is self-delimiting so this
	// isn't strictly necessary, but it lets the server's read side
	// see EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	// Read the response.
	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
