package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Client calls the service over the session bus. It has the same call
// surface as the socket client, so generators and the CLI can use either.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the session bus.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{conn: conn, obj: conn.Object(BusName, ObjectPath)}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ShowBlock calls show_block.
func (c *Client) ShowBlock(ctx context.Context, fields map[string]any) error {
	return c.obj.CallWithContext(ctx, Interface+".show_block", 0, ToVariants(fields)).Err
}

// GetConfigJSON calls get_config.
func (c *Client) GetConfigJSON(ctx context.Context, name string) (string, error) {
	var out string
	if err := c.obj.CallWithContext(ctx, Interface+".get_config", 0, name).Store(&out); err != nil {
		return "", err
	}
	return out, nil
}

// GetConfig calls get_config and decodes the section.
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

// Log calls generator_log.
func (c *Client) Log(ctx context.Context, level int, name, message string) error {
	return c.obj.CallWithContext(ctx, Interface+".generator_log", 0, int32(level), name, message).Err
}

// Rejection returns the message of an error reply the service sent with
// one of its own error names. ok is false for transport failures.
func Rejection(err error) (message string, ok bool) {
	var name string
	var body []any
	var derr dbus.Error
	var pderr *dbus.Error
	switch {
	case errors.As(err, &derr):
		name, body = derr.Name, derr.Body
	case errors.As(err, &pderr):
		name, body = pderr.Name, pderr.Body
	default:
		return "", false
	}
	if !strings.HasPrefix(name, Interface+".Error.") {
		return "", false
	}
	if len(body) > 0 {
		if s, isString := body[0].(string); isString {
			return s, true
		}
	}
	return name, true
}
