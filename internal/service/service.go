package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/dstatus/internal/block"
	"github.com/roach88/dstatus/internal/config"
	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/ids"
	"github.com/roach88/dstatus/internal/journal"
	"github.com/roach88/dstatus/internal/registry"
	"github.com/roach88/dstatus/internal/supervisor"
)

var (
	// ErrStopped is returned to callers once the loop has stopped.
	ErrStopped = errors.New("service stopped")

	// ErrAlreadyStarted is returned by a second Run.
	ErrAlreadyStarted = errors.New("service already started")
)

// State is the service lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Generators starts and stops generator programs.
type Generators interface {
	SpawnAll(ctx context.Context, names []string) []*supervisor.Handle
	StopAll(ctx context.Context)
}

// Options are the service's dependencies. Emitter is required; the rest
// may be zero.
type Options struct {
	Config *config.Config

	// Generators lists generators named on the command line. They run
	// before general.generators and define the default order.
	Generators []string

	Emitter    *emitter.Emitter
	Supervisor Generators
	Journal    *journal.Journal
	SessionIDs ids.Generator
	Logger     *slog.Logger

	// StopTimeout bounds generator shutdown once the loop has stopped.
	StopTimeout time.Duration
}

// Service is the aggregation service. Its exported methods are safe to
// call from any goroutine.
type Service struct {
	opts   Options
	logger *slog.Logger

	cfg     atomic.Pointer[config.Config]
	state   atomic.Int32
	started atomic.Bool
	queue   *commandQueue

	// Touched only from the Run goroutine.
	registry *registry.Registry
}

type commandKind int

const (
	cmdShow commandKind = iota + 1
	cmdReload
)

type command struct {
	kind   commandKind
	block  block.Block
	fields map[string]any
	config *config.Config
	done   chan error
}

// New builds a service in the Starting state.
func New(opts Options) *Service {
	if opts.Config == nil {
		opts.Config = config.Empty()
	}
	if opts.SessionIDs == nil {
		opts.SessionIDs = ids.UUIDv7{}
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = supervisor.DefaultStopTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		opts:     opts,
		logger:   logger,
		queue:    newCommandQueue(),
		registry: registry.New(opts.Config.OrderFor(opts.Generators)),
	}
	s.cfg.Store(opts.Config)
	s.state.Store(int32(StateStarting))
	return s
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Config returns the current configuration snapshot.
func (s *Service) Config() *config.Config {
	return s.cfg.Load()
}

// GetConfig returns the JSON encoding of the named block's config section,
// or "{}" when there is none.
func (s *Service) GetConfig(name string) string {
	out := s.cfg.Load().SectionJSON(name)
	s.record(journal.Call{Op: journal.OpGetConfig, Name: name})
	return out
}

// ShowBlock validates fields and applies them as a block update. It
// returns once the update has been applied, or with ctx's error if ctx
// ends first. Invalid input is rejected without touching any state.
func (s *Service) ShowBlock(ctx context.Context, fields map[string]any) error {
	b, err := block.Parse(fields)
	if err != nil {
		s.logger.Debug("rejected block", "error", err)
		s.record(journal.Call{Op: journal.OpShowBlock, Name: nameOf(fields), Args: fields, Error: err.Error()})
		return err
	}
	return s.submit(ctx, &command{kind: cmdShow, block: b, fields: fields})
}

// Reload swaps the configuration and re-applies the ordering key. Blocks
// already on the bar pick up new overrides on their next update.
func (s *Service) Reload(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("reload: nil config")
	}
	return s.submit(ctx, &command{kind: cmdReload, config: cfg})
}

func (s *Service) submit(ctx context.Context, c *command) error {
	c.done = make(chan error, 1)
	if !s.queue.Enqueue(c) {
		return ErrStopped
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GeneratorLog logs a message on behalf of a generator. Levels are 1
// (debug), 2 (info) and 3 (error); anything else logs at info with the raw
// level attached.
func (s *Service) GeneratorLog(level int, name, message string) {
	attrs := []any{"generator", name}
	slogLevel := slog.LevelInfo
	switch level {
	case LogDebug:
		slogLevel = slog.LevelDebug
	case LogInfo:
	case LogError:
		slogLevel = slog.LevelError
	default:
		attrs = append(attrs, "level", level)
	}
	s.logger.Log(context.Background(), slogLevel, message, attrs...)
	s.record(journal.Call{
		Op:   journal.OpGeneratorLog,
		Name: name,
		Args: map[string]any{"level": level, "message": message},
	})
}

// Generator log levels.
const (
	LogDebug = 1
	LogInfo  = 2
	LogError = 3
)

// Run starts generators, writes the preamble and applies commands until
// ctx is cancelled. It returns ctx's error after a clean shutdown, or the
// startup error if the journal session or the preamble could not be
// written.
//
// Generators are spawned before the preamble so their first calls can
// already be queued when the loop starts; nothing is emitted until the
// preamble is out. Run may be called once. On return the queue is closed,
// queued callers get ErrStopped and generators have been asked to stop.
func (s *Service) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.shutdown()

	if err := s.startJournal(ctx); err != nil {
		return err
	}

	cfg := s.cfg.Load()
	if s.opts.Supervisor != nil {
		s.opts.Supervisor.SpawnAll(ctx, cfg.GeneratorList(s.opts.Generators))
	}

	if err := s.opts.Emitter.Preamble(); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	s.state.Store(int32(StateRunning))
	s.logger.Info("service running")

	for {
		if c, ok := s.queue.TryDequeue(); ok {
			c.done <- s.apply(c)
			continue
		}
		select {
		case <-ctx.Done():
			s.logger.Info("service stopping", "reason", context.Cause(ctx))
			return ctx.Err()
		case <-s.queue.Wait():
		}
	}
}
