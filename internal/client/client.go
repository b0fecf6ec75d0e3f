// Package client talks to a running service over its Unix socket. It is
// what the show, clear, get-config and log subcommands use, and what Go
// generators can embed.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/roach88/dstatus/internal/codec"
	"github.com/roach88/dstatus/internal/transport/socket"
)

const (
	dialTimeout     = 5 * time.Second
	responseTimeout = 30 * time.Second
	maxResponseSize = 1024 * 1024
)

// ServiceError is a failure reported by the service.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client calls the service over a Unix socket. It holds no connection;
// every call dials.
type Client struct {
	path string
}

// New returns a client for the socket at path.
func New(path string) *Client {
	return &Client{path: path}
}

// Call sends action with fields and decodes the response data into result
// when result is non-nil.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		request[k] = v
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.path, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decode %q response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*socket.Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	if _, ok := ctx.Deadline(); !ok {
		conn.SetReadDeadline(time.Now().Add(responseTimeout))
	}
	var response socket.Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response, nil
}

// ShowBlock sends a block update.
func (c *Client) ShowBlock(ctx context.Context, fields map[string]any) error {
	return c.Call(ctx, socket.ActionShowBlock, map[string]any{"block": fields}, nil)
}

// GetConfigJSON returns the raw JSON config section for name.
func (c *Client) GetConfigJSON(ctx context.Context, name string) (string, error) {
	var out string
	if err := c.Call(ctx, socket.ActionGetConfig, map[string]any{"name": name}, &out); err != nil {
		return "", err
	}
	return out, nil
}

// GetConfig returns the decoded config section for name.
func (c *Client) GetConfig(ctx context.Context, name string) (map[string]any, error) {
	raw, err := c.GetConfigJSON(ctx, name)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode config for %s: %w", name, err)
	}
	return out, nil
}

// Log sends a generator log message. Levels are 1 debug, 2 info, 3 error.
func (c *Client) Log(ctx context.Context, level int, name, message string) error {
	return c.Call(ctx, socket.ActionGeneratorLog, map[string]any{
		"level":   level,
		"name":    name,
		"message": message,
	}, nil)
}
