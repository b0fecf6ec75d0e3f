package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dstatus/internal/config"
	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/ids"
	"github.com/roach88/dstatus/internal/journal"
	"github.com/roach88/dstatus/internal/logging"
	"github.com/roach88/dstatus/internal/service"
	"github.com/roach88/dstatus/internal/supervisor"
	"github.com/roach88/dstatus/internal/transport/dbus"
	"github.com/roach88/dstatus/internal/transport/socket"
)

var (
	errStdinClosed = errors.New("bar closed stdin")
	errSignal      = errors.New("terminated by signal")
)

// ServeOptions holds flags for running the service.
type ServeOptions struct {
	*RootOptions
	Config        string
	NoBus         bool
	GeneratorsDir string
	Journal       string
	StopTimeout   time.Duration
	CrashDir      string
}

func (o *ServeOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Config, "config", "c", "", "config file (default ~/.i3-dstatus.conf)")
	cmd.Flags().BoolVar(&o.NoBus, "no-bus", false, "do not claim the session bus name")
	cmd.Flags().StringVar(&o.GeneratorsDir, "generators-dir", "", "directory of bundled generators")
	cmd.Flags().StringVar(&o.Journal, "journal", "", "record calls and status lines to this SQLite file")
	cmd.Flags().DurationVar(&o.StopTimeout, "stop-timeout", supervisor.DefaultStopTimeout, "grace period before generators are killed")
	cmd.Flags().StringVar(&o.CrashDir, "crash-dir", "", "directory for crash reports (default temp dir)")
	_ = cmd.Flags().MarkHidden("crash-dir")
}

// loadConfig reads an explicitly named file, or the default file if it
// exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path, true)
}

func runServe(opts *ServeOptions, generators []string, cmd *cobra.Command) (err error) {
	logger, closer, err := logging.New(logging.Options{
		Level:   opts.LogLevel,
		Verbose: opts.Verbose,
		File:    opts.LogFile,
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "configure logging", err)
	}
	defer closer.Close()

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic: %v", r)
			opts.crash(logger, perr, debug.Stack())
			err = WrapExitError(ExitFailure, "service crashed", perr)
		}
	}()

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		logger.Error("could not load config", "error", err)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	var j *journal.Journal
	if opts.Journal != "" {
		j, err = journal.Open(opts.Journal)
		if err != nil {
			return opts.fail(logger, "open journal", err)
		}
		defer j.Close()
	}

	srv, err := listenSocket(opts.Socket, cmd.Flags().Changed("socket"), logger)
	if err != nil {
		return opts.fail(logger, "listen", err)
	}
	opts.Socket = srv.Path()

	binDir, bundledDir := generatorDirs(opts.GeneratorsDir)
	sup := supervisor.New(supervisor.Options{
		BundledDir:  bundledDir,
		BinDir:      binDir,
		SocketPath:  opts.Socket,
		Stdout:      cmd.ErrOrStderr(),
		Stderr:      cmd.ErrOrStderr(),
		StopTimeout: opts.StopTimeout,
		Logger:      logger,
	})

	svc := service.New(service.Options{
		Config:      cfg,
		Generators:  generators,
		Emitter:     emitter.New(cmd.OutOrStdout()),
		Supervisor:  sup,
		Journal:     j,
		SessionIDs:  ids.UUIDv7{},
		Logger:      logger,
		StopTimeout: opts.StopTimeout,
	})

	socket.Register(srv, svc)
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ctx) }()

	if !opts.NoBus {
		bus, err := dbus.Connect(ctx, svc, logger)
		if err != nil {
			logger.Warn("session bus unavailable, serving socket only", "error", err)
		} else {
			defer bus.Close()
		}
	}

	go watchStdin(cmd.InOrStdin(), logger, func() { cancel(errStdinClosed) })

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go handleSignals(ctx, sigs, logger, cancel, func() { reload(ctx, svc, opts.Config, logger) })

	runErr := svc.Run(ctx)
	cancel(nil)
	if serr := <-serveDone; serr != nil {
		logger.Warn("socket server stopped with error", "error", serr)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return opts.fail(logger, "service failed", runErr)
	}
	if errors.Is(context.Cause(ctx), errStdinClosed) {
		return NewExitError(ExitStdinClosed, errStdinClosed.Error())
	}
	return nil
}

// fail records a startup or runtime failure in the crash log and maps it
// to ExitFailure.
func (o *ServeOptions) fail(logger *slog.Logger, message string, err error) error {
	o.crash(logger, fmt.Errorf("%s: %w", message, err), nil)
	return WrapExitError(ExitFailure, message, err)
}

func (o *ServeOptions) crash(logger *slog.Logger, err error, stack []byte) {
	path, werr := logging.WriteCrashReport(o.CrashDir, err, stack)
	if werr != nil {
		logger.Error("could not write crash report", "error", werr, "cause", err)
		return
	}
	logger.Error("i3-dstatus failed", "error", err, "report", path)
}

// watchStdin drains bar input (click events are not handled) and calls
// onEOF once the bar closes the pipe.
func watchStdin(r io.Reader, logger *slog.Logger, onEOF func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("ignoring bar input", "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading stdin failed", "error", err)
	}
	logger.Info("stdin closed, shutting down")
	onEOF()
}

func handleSignals(ctx context.Context, sigs <-chan os.Signal, logger *slog.Logger, cancel context.CancelCauseFunc, onHangup func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				onHangup()
				continue
			}
			logger.Info("signal received, shutting down", "signal", sig.String())
			cancel(errSignal)
			return
		}
	}
}

// reload re-reads the config file and hands it to the service. A bad file
// keeps the current config.
func reload(ctx context.Context, svc *service.Service, path string, logger *slog.Logger) {
	cfg, err := loadConfig(path)
	if err != nil {
		logger.Error("reload failed, keeping current config", "error", err)
		return
	}
	if err := svc.Reload(ctx, cfg); err != nil {
		logger.Warn("reload not applied", "error", err)
		return
	}
	logger.Info("config reloaded", "path", cfg.Path)
}

// generatorDirs returns the executable's directory and the bundled
// generator directory. An explicit override wins; otherwise the first of
// <bin>/generators and <bin>/../share/i3-dstatus/generators that exists.
func generatorDirs(override string) (binDir, bundled string) {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		binDir = filepath.Dir(exe)
	}
	if override != "" {
		return binDir, override
	}
	if binDir == "" {
		return "", ""
	}
	for _, dir := range []string{
		filepath.Join(binDir, "generators"),
		filepath.Join(binDir, "..", "share", "i3-dstatus", "generators"),
	} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return binDir, filepath.Clean(dir)
		}
	}
	return binDir, ""
}

// listenSocket binds path. When another instance already serves the
// default path, as with one status command per i3 bar, this instance
// moves to a per-process path; its generators learn it from
// I3DSTATUS_SOCKET. An explicit --socket is never moved.
func listenSocket(path string, explicit bool, logger *slog.Logger) (*socket.Server, error) {
	srv := socket.NewServer(path, logger)
	err := srv.Listen()
	if err == nil || explicit || !errors.Is(err, socket.ErrAlreadyServing) {
		return srv, err
	}
	alt := socket.InstancePath(path, os.Getpid())
	logger.Info("socket in use by another instance", "socket", path, "using", alt)
	srv = socket.NewServer(alt, logger)
	return srv, srv.Listen()
}
