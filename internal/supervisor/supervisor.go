// Package supervisor starts generator programs and stops them on shutdown.
//
// Each generator runs in its own process group with stdin from /dev/null
// and stdout redirected away from the bar stream. Stopping sends SIGTERM
// to every group, waits a grace period, then sends SIGKILL to whatever is
// left and reaps everything.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/roach88/dstatus/internal/ids"
)

// SocketEnv carries the socket transport path to generators.
const SocketEnv = "I3DSTATUS_SOCKET"

// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// ErrGeneratorNotFound is returned when a generator name resolves to no
// executable.
var ErrGeneratorNotFound = errors.New("generator not found")

// State is a generator process state.
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
)

// Options configures a Supervisor.
type Options struct {
	// BundledDir holds generators shipped with the service.
	BundledDir string

	// BinDir is prepended to PATH for generators. Usually the directory of
	// the running executable.
	BinDir string

	// SocketPath is exported as I3DSTATUS_SOCKET when set.
	SocketPath string

	// Env holds extra KEY=VALUE entries.
	Env []string

	// Stdout receives generator stdout. Defaults to os.Stderr.
	Stdout io.Writer
	// Stderr receives generator stderr. Defaults to os.Stderr.
	Stderr io.Writer

	StopTimeout time.Duration
	IDs         ids.Generator
	Logger      *slog.Logger
}

// Handle tracks one started generator.
type Handle struct {
	ID        string
	Name      string
	Path      string
	Pid       int
	StartedAt time.Time

	mu    sync.Mutex
	state State
	code  int
	done  chan struct{}
}

// State returns the current process state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ExitCode returns the exit code once exited, -1 if killed by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

// Done is closed when the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Info is a point-in-time view of a Handle.
type Info struct {
	ID       string
	Name     string
	Path     string
	Pid      int
	State    State
	ExitCode int
}

// Supervisor owns generator processes. Safe for concurrent use.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	handles []*Handle
}

// New returns a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Stdout == nil {
		opts.Stdout = os.Stderr
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.IDs == nil {
		opts.IDs = ids.UUIDv7{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// Resolve maps a generator name to an executable path: an existing
// absolute (or ~-relative) path, then the bundled directory, then PATH.
func (s *Supervisor) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrGeneratorNotFound)
	}

	expanded := expandHome(name)
	if filepath.IsAbs(expanded) && isExecutable(expanded) {
		return expanded, nil
	}

	if s.opts.BundledDir != "" && !strings.ContainsRune(name, '/') {
		bundled := filepath.Join(s.opts.BundledDir, name)
		if isExecutable(bundled) {
			return bundled, nil
		}
	}

	path, err := exec.LookPath(expanded)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneratorNotFound, name)
	}
	return path, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// Env returns the environment generators are started with.
func (s *Supervisor) Env() []string {
	env := os.Environ()
	if s.opts.BinDir != "" {
		path := s.opts.BinDir
		if cur := os.Getenv("PATH"); cur != "" {
			path += string(os.PathListSeparator) + cur
		}
		env = append(env, "PATH="+path)
	}
	if s.opts.SocketPath != "" {
		env = append(env, SocketEnv+"="+s.opts.SocketPath)
	}
	return append(env, s.opts.Env...)
}

// Spawn resolves and starts one generator. ctx only bounds startup; the
// process outlives it until StopAll.
func (s *Supervisor) Spawn(ctx context.Context, name string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path)
	cmd.Env = s.Env()
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start generator %s: %w", name, err)
	}

	h := &Handle{
		ID:        s.opts.IDs.Generate(),
		Name:      name,
		Path:      path,
		Pid:       cmd.Process.Pid,
		StartedAt: time.Now(),
		state:     StateRunning,
		done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	s.logger.Debug("generator started", "generator", name, "path", path, "pid", h.Pid, "id", h.ID)

	go s.reap(cmd, h)
	return h, nil
}

func (s *Supervisor) reap(cmd *exec.Cmd, h *Handle) {
	err := cmd.Wait()
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	h.mu.Lock()
	h.state = StateExited
	h.code = code
	h.mu.Unlock()
	close(h.done)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		s.logger.Warn("generator wait failed", "generator", h.Name, "pid", h.Pid, "error", err)
		return
	}
	s.logger.Debug("generator exited", "generator", h.Name, "pid", h.Pid, "code", code)
}

// SpawnAll starts each generator in order. Failures are logged and
// skipped. It stops early if ctx is cancelled.
func (s *Supervisor) SpawnAll(ctx context.Context, names []string) []*Handle {
	var started []*Handle
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		h, err := s.Spawn(ctx, name)
		if err != nil {
			s.logger.Error("could not start generator", "generator", name, "error", err)
			continue
		}
		started = append(started, h)
	}
	return started
}

// StopAll terminates every running generator. Process groups get SIGTERM,
// then SIGKILL after the stop timeout or when ctx ends. It returns once
// every process has been reaped.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	handles := append([]*Handle(nil), s.handles...)
	s.mu.Unlock()

	var running []*Handle
	for _, h := range handles {
		if h.State() != StateRunning {
			continue
		}
		running = append(running, h)
		signalGroup(h, unix.SIGTERM)
	}
	if len(running) == 0 {
		return
	}

	allDone := make(chan struct{})
	go func() {
		for _, h := range running {
			<-h.done
		}
		close(allDone)
	}()

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-allDone:
		return
	case <-timer.C:
	case <-ctx.Done():
	}

	for _, h := range running {
		if h.State() == StateRunning {
			s.logger.Warn("generator ignored SIGTERM, killing", "generator", h.Name, "pid", h.Pid)
			signalGroup(h, unix.SIGKILL)
		}
	}
	<-allDone
}

// signalGroup signals the process group, falling back to the process when
// the group is already gone.
func signalGroup(h *Handle, sig unix.Signal) {
	if err := unix.Kill(-h.Pid, sig); err != nil {
		_ = unix.Kill(h.Pid, sig)
	}
}

// Handles returns a snapshot of every tracked generator, ordered by start.
func (s *Supervisor) Handles() []Info {
	s.mu.Lock()
	handles := append([]*Handle(nil), s.handles...)
	s.mu.Unlock()

	out := make([]Info, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		out = append(out, Info{
			ID:       h.ID,
			Name:     h.Name,
			Path:     h.Path,
			Pid:      h.Pid,
			State:    h.state,
			ExitCode: h.code,
		})
		h.mu.Unlock()
	}
	return out
}
