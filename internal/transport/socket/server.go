// Package socket serves the block service over a Unix socket.
//
// Each connection carries one CBOR request and one CBOR response. The
// request is a map with an "action" key plus action-specific fields:
//
//	{action: "show_block", block: {name: "clock", full_text: "12:00"}}
//	{action: "get_config", name: "clock"}
//	{action: "generator_log", level: 2, name: "clock", message: "..."}
//
// The response is {ok: true, data: ...} or {ok: false, error: "..."}.
package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/dstatus/internal/codec"
)

// Action names.
const (
	ActionShowBlock    = "show_block"
	ActionGetConfig    = "get_config"
	ActionGeneratorLog = "generator_log"
)

// ErrAlreadyServing is returned by Listen when another process answers on
// the socket path.
var ErrAlreadyServing = errors.New("socket already served by another process")

const (
	liveCheckTimeout = time.Second
	readTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
	maxRequestSize   = 256 * 1024
)

// ActionFunc handles one decoded request. raw is the whole request map.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope written back on every connection.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Server accepts connections on a Unix socket and dispatches by action.
type Server struct {
	path     string
	handlers map[string]ActionFunc
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	active   sync.WaitGroup
}

// NewServer returns a server for path. Handlers must be registered before
// Serve.
func NewServer(path string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:     path,
		handlers: make(map[string]ActionFunc),
		logger:   logger,
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Handle registers handler for action. Registering an action twice panics.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("socket.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Listen binds the socket. A socket file nobody answers on is stale and is
// replaced; one that accepts a connection belongs to a running service
// (i3 starts one status command per bar) and Listen fails with
// ErrAlreadyServing. Serve calls Listen when it has not been called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if conn, err := net.DialTimeout("unix", s.path, liveCheckTimeout); err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrAlreadyServing, s.path)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket %s: %w", s.path, err)
	}
	l, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	s.listener = l
	return nil
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests and removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	defer func() {
		listener.Close()
		os.Remove(s.path)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket listening", "path", s.path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

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

	handler, ok := s.handlers[header.Action]
	if !ok {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{Error: message}); err != nil {
		s.logger.Debug("write error response failed", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: encode response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

// DefaultPath returns $XDG_RUNTIME_DIR/i3-dstatus.sock, or a per-user
// path in the temp directory when XDG_RUNTIME_DIR is unset.
func DefaultPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "i3-dstatus.sock")
	}
	return filepath.Join(os.TempDir(), "i3-dstatus-"+strconv.Itoa(os.Getuid())+".sock")
}

// InstancePath derives a per-process socket path from path.
func InstancePath(path string, pid int) string {
	return strings.TrimSuffix(path, ".sock") + "-" + strconv.Itoa(pid) + ".sock"
}
