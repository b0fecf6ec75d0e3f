// Package dbus exports the block service on the D-Bus session bus under
// the well-known name com.dubstepdish.i3dstatus.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/roach88/dstatus/internal/block"
)

// Bus coordinates.
const (
	BusName    = "com.dubstepdish.i3dstatus"
	ObjectPath = dbus.ObjectPath("/com/dubstepdish/i3dstatus")
	Interface  = "com.dubstepdish.i3dstatus"
)

// Error names returned to callers.
const (
	ErrorInvalidBlock = Interface + ".Error.InvalidBlock"
	ErrorFailed       = Interface + ".Error.Failed"
)

// ErrNameTaken is returned when another process owns BusName.
var ErrNameTaken = errors.New("bus name already owned")

// Service is the block service as seen by the transport.
type Service interface {
	ShowBlock(ctx context.Context, fields map[string]any) error
	GetConfig(name string) string
	GeneratorLog(level int, name, message string)
}

const introspectXML = `<node>
	<interface name="` + Interface + `">
		<method name="show_block">
			<arg name="block" direction="in" type="a{sv}"/>
		</method>
		<method name="get_config">
			<arg name="block_name" direction="in" type="s"/>
			<arg name="config" direction="out" type="s"/>
		</method>
		<method name="generator_log">
			<arg name="level" direction="in" type="i"/>
			<arg name="block_name" direction="in" type="s"/>
			<arg name="message" direction="in" type="s"/>
		</method>
	</interface>` + introspect.IntrospectDataString + `</node>`

// object holds the exported methods. godbus dispatches each call on its
// own goroutine.
type object struct {
	ctx    context.Context
	svc    Service
	logger *slog.Logger
}

func (o *object) showBlock(fields map[string]dbus.Variant) *dbus.Error {
	if err := o.svc.ShowBlock(o.ctx, FromVariants(fields)); err != nil {
		o.logger.Debug("dbus show_block failed", "error", err)
		name := ErrorFailed
		if errors.Is(err, block.ErrInvalidBlock) {
			name = ErrorInvalidBlock
		}
		return dbus.NewError(name, []any{err.Error()})
	}
	return nil
}

func (o *object) getConfig(name string) (string, *dbus.Error) {
	return o.svc.GetConfig(name), nil
}

func (o *object) generatorLog(level int32, name, message string) *dbus.Error {
	o.svc.GeneratorLog(int(level), name, message)
	return nil
}

func (o *object) methods() map[string]any {
	return map[string]any{
		"show_block":    o.showBlock,
		"get_config":    o.getConfig,
		"generator_log": o.generatorLog,
	}
}

// Server is an exported service on a bus connection.
type Server struct {
	conn   *dbus.Conn
	owned  bool
	logger *slog.Logger
}

// Connect dials the session bus and exports svc on it. ctx bounds the
// lifetime of calls made through the bus.
func Connect(ctx context.Context, svc Service, logger *slog.Logger) (*Server, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	srv, err := Export(ctx, conn, svc, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return srv, nil
}

// Export publishes svc on conn and claims BusName.
func Export(ctx context.Context, conn *dbus.Conn, svc Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	obj := &object{ctx: ctx, svc: svc, logger: logger}

	if err := conn.ExportMethodTable(obj.methods(), ObjectPath, Interface); err != nil {
		return nil, fmt.Errorf("export %s: %w", Interface, err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, BusName)
	}
	logger.Info("dbus name acquired", "name", BusName)
	return &Server{conn: conn, owned: true, logger: logger}, nil
}

// Close releases the bus name and closes the connection.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if s.owned {
		if _, err := s.conn.ReleaseName(BusName); err != nil {
			s.logger.Debug("release bus name failed", "error", err)
		}
	}
	return s.conn.Close()
}
