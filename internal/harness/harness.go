package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/dstatus/internal/config"
	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/journal"
	"github.com/roach88/dstatus/internal/service"
	"github.com/roach88/dstatus/internal/supervisor"
	"github.com/roach88/dstatus/internal/testutil"
)

const stepTimeout = 5 * time.Second

// recorder stands in for the supervisor and remembers what it was asked
// to start.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) SpawnAll(_ context.Context, names []string) []*supervisor.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, names...)
	return nil
}

func (r *recorder) StopAll(context.Context) {}

// Harness drives one service instance through a scenario.
type Harness struct {
	svc     *service.Service
	journal *journal.Journal
	out     *testutil.SyncBuffer
	gens    *recorder
}

// Run executes a scenario against a fresh service with an in-memory
// journal and returns the result. An error means the scenario could not
// be run at all; failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	cfg := config.Empty()
	if scenario.Config != "" {
		parsed, err := config.Parse([]byte(scenario.Config), config.FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("scenario config: %w", err)
		}
		cfg = parsed
	}

	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	h := &Harness{
		journal: j,
		out:     &testutil.SyncBuffer{},
		gens:    &recorder{},
	}
	h.svc = service.New(service.Options{
		Config:     cfg,
		Generators: scenario.Generators,
		Emitter:    emitter.New(h.out),
		Supervisor: h.gens,
		Journal:    j,
		SessionIDs: testutil.NewSequenceIDs(scenario.Name),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- h.svc.Run(ctx) }()

	if err := h.waitRunning(runErr); err != nil {
		cancel()
		return nil, err
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("service stopped: %w", err)
	}

	if err := h.collect(result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) waitRunning(runErr <-chan error) error {
	deadline := time.After(stepTimeout)
	for h.svc.State() != service.StateRunning {
		select {
		case err := <-runErr:
			return fmt.Errorf("service failed to start: %w", err)
		case <-deadline:
			return fmt.Errorf("service did not start within %s", stepTimeout)
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		got, err := h.execute(stepCtx, step)
		cancel()

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.kind(), err))
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error containing %q, got success", i, step.kind(), step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error containing %q, got %q", i, step.kind(), step.ExpectError, err))
		}
		if step.Expect != nil && got != *step.Expect {
			result.AddError(fmt.Sprintf("flow[%d] get_config: expected %s, got %s", i, *step.Expect, got))
		}
	}
}

func (h *Harness) execute(ctx context.Context, step FlowStep) (string, error) {
	switch {
	case step.Show != nil:
		return "", h.svc.ShowBlock(ctx, step.Show)
	case step.GetConfig != "":
		return h.svc.GetConfig(step.GetConfig), nil
	default:
		cfg, err := config.Parse([]byte(*step.Reload), config.FormatYAML)
		if err != nil {
			return "", err
		}
		return "", h.svc.Reload(ctx, cfg)
	}
}

// collect fills in the stream, status lines, trace and spawned generators.
func (h *Harness) collect(result *Result) error {
	result.Stream = h.out.String()
	body, ok := strings.CutPrefix(result.Stream, emitter.Preamble)
	if !ok {
		return fmt.Errorf("stream does not start with the preamble: %q", result.Stream)
	}
	for _, line := range strings.Split(strings.TrimSuffix(body, "\n"), "\n") {
		if line != "" {
			result.Lines = append(result.Lines, strings.TrimPrefix(line, ","))
		}
	}

	ctx := context.Background()
	calls, err := h.journal.Calls(ctx, h.journal.Session())
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	for _, c := range calls {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:      c.Seq,
			Op:       c.Op,
			Name:     c.Name,
			Instance: c.Instance,
			Error:    c.Error,
		})
	}

	h.gens.mu.Lock()
	result.Spawned = append([]string(nil), h.gens.names...)
	h.gens.mu.Unlock()
	return nil
}
