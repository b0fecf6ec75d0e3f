package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstatus/internal/block"
	"github.com/roach88/dstatus/internal/config"
	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/journal"
	"github.com/roach88/dstatus/internal/supervisor"
	"github.com/roach88/dstatus/internal/testutil"
)

type fakeGenerators struct {
	mu      sync.Mutex
	spawned []string
	stopped bool
}

func (f *fakeGenerators) SpawnAll(_ context.Context, names []string) []*supervisor.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, names...)
	return nil
}

func (f *fakeGenerators) StopAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type harness struct {
	svc  *Service
	out  *testutil.SyncBuffer
	gens *fakeGenerators
	stop func() error
}

func parseConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc), config.FormatYAML)
	require.NoError(t, err)
	return cfg
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	out := &testutil.SyncBuffer{}
	gens := &fakeGenerators{}
	opts.Emitter = emitter.New(out)
	opts.Supervisor = gens
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	return &harness{svc: New(opts), out: out, gens: gens}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.svc.Run(ctx) }()

	var once sync.Once
	var runErr error
	h.stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-errc:
			case <-time.After(5 * time.Second):
				runErr = errors.New("Run did not return")
			}
		})
		return runErr
	}
	t.Cleanup(func() { h.stop() })

	require.Eventually(t, func() bool { return h.svc.State() == StateRunning }, 5*time.Second, time.Millisecond)
}

func (h *harness) show(t *testing.T, fields map[string]any) {
	t.Helper()
	require.NoError(t, h.svc.ShowBlock(context.Background(), fields))
}

// statusLines returns the emitted lines after the preamble.
func (h *harness) statusLines() []string {
	lines := h.out.Lines()
	if len(lines) <= 3 {
		return nil
	}
	return lines[3:]
}

func TestService_EndToEnd(t *testing.T) {
	h := newHarness(t, Options{Config: config.Empty(), Generators: []string{"clock"}})
	h.start(t)

	assert.Equal(t, emitter.Preamble, h.out.String())

	h.show(t, map[string]any{"name": "clock", "full_text": "12:00"})
	h.show(t, map[string]any{"name": "clock", "full_text": ""})

	assert.ErrorIs(t, h.stop(), context.Canceled)
	assert.Equal(t, []string{"clock"}, h.gens.spawned)
	assert.True(t, h.gens.stopped)
	assert.Equal(t, StateStopped, h.svc.State())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "end_to_end", []byte(h.out.String()))
}

func TestService_GetConfig(t *testing.T) {
	h := newHarness(t, Options{Config: parseConfig(t, "clock:\n  color: \"#ffffff\"\n  format: \"%H:%M\"\n")})

	assert.Equal(t, "{}", h.svc.GetConfig("unknown"))
	assert.Equal(t, `{"color":"#ffffff","format":"%H:%M"}`, h.svc.GetConfig("clock"))
}

func TestService_ResolvesOverrides(t *testing.T) {
	cfg := parseConfig(t, `
general:
  color: "#111111"
  separator-block-width: 12
disk:
  color: "#222222"
  /home:
    color: "#333333"
`)
	h := newHarness(t, Options{Config: cfg})
	h.start(t)

	h.show(t, map[string]any{"name": "disk", "instance": "/home", "full_text": "90G"})
	h.show(t, map[string]any{"name": "disk", "instance": "/", "full_text": "10G"})
	h.show(t, map[string]any{"name": "clock", "full_text": "12:00", "color": "#abcdef"})

	lines := h.statusLines()
	require.Len(t, lines, 3)
	assert.Equal(t,
		`,[{"name":"disk","instance":"/home","full_text":"90G","color":"#333333","separator_block_width":12},`+
			`{"name":"disk","instance":"/","full_text":"10G","color":"#222222","separator_block_width":12},`+
			`{"name":"clock","full_text":"12:00","color":"#abcdef","separator_block_width":12}]`,
		lines[2])
}

func TestService_InvalidBlockRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	h.show(t, map[string]any{"name": "a", "full_text": "A"})

	err := h.svc.ShowBlock(context.Background(), map[string]any{"name": "a", "full_text": "B", "bogus": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, block.ErrInvalidBlock))

	err = h.svc.ShowBlock(context.Background(), map[string]any{"full_text": "no name"})
	assert.True(t, errors.Is(err, block.ErrInvalidBlock))

	assert.Equal(t, []string{`,[{"name":"a","full_text":"A"}]`}, h.statusLines())
}

func TestService_UnchangedBlockEmitsOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	for i := 0; i < 3; i++ {
		h.show(t, map[string]any{"name": "a", "full_text": "A"})
	}
	h.show(t, map[string]any{"name": "ghost", "full_text": ""})
	assert.Len(t, h.statusLines(), 1)
}

func TestService_VendorKeysPassThrough(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	h.show(t, map[string]any{"name": "a", "full_text": "A", "_mine": "x"})
	assert.Equal(t, []string{`,[{"name":"a","full_text":"A","_mine":"x"}]`}, h.statusLines())
}

func TestService_UnencodableVendorValueRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	err := h.svc.ShowBlock(context.Background(), map[string]any{"name": "a", "full_text": "A", "_v": math.NaN()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, block.ErrInvalidBlock))

	h.show(t, map[string]any{"name": "b", "full_text": "B"})
	assert.Equal(t, []string{`,[{"name":"b","full_text":"B"}]`}, h.statusLines())
}

func TestService_Ordering(t *testing.T) {
	h := newHarness(t, Options{
		Config:     parseConfig(t, "general:\n  generators: [disk]\n"),
		Generators: []string{"clock"},
	})
	h.start(t)

	h.show(t, map[string]any{"name": "extra", "full_text": "?"})
	h.show(t, map[string]any{"name": "disk", "full_text": "10G"})
	h.show(t, map[string]any{"name": "clock", "full_text": "12:00"})

	lines := h.statusLines()
	require.Len(t, lines, 3)
	assert.Equal(t,
		`,[{"name":"clock","full_text":"12:00"},{"name":"disk","full_text":"10G"},{"name":"extra","full_text":"?"}]`,
		lines[2])
	assert.Equal(t, []string{"clock", "disk"}, h.gens.spawned)
}

func TestService_ReloadReorders(t *testing.T) {
	h := newHarness(t, Options{Config: parseConfig(t, "general:\n  order: [a, b]\n")})
	h.start(t)
	h.show(t, map[string]any{"name": "a", "full_text": "A"})
	h.show(t, map[string]any{"name": "b", "full_text": "B"})
	require.Len(t, h.statusLines(), 2)

	ctx := context.Background()
	require.NoError(t, h.svc.Reload(ctx, parseConfig(t, "general:\n  order: [a, b]\n  color: \"#fff\"\n")))
	require.Len(t, h.statusLines(), 2, "same order must not emit")

	require.NoError(t, h.svc.Reload(ctx, parseConfig(t, "general:\n  order: [b, a]\n")))
	lines := h.statusLines()
	require.Len(t, lines, 3)
	assert.Equal(t, `,[{"name":"b","full_text":"B"},{"name":"a","full_text":"A"}]`, lines[2])

	assert.Error(t, h.svc.Reload(ctx, nil))
}

func TestService_CallsBeforeRunAreQueued(t *testing.T) {
	h := newHarness(t, Options{})

	done := make(chan error, 1)
	go func() {
		done <- h.svc.ShowBlock(context.Background(), map[string]any{"name": "early", "full_text": "E"})
	}()
	require.Eventually(t, func() bool { return h.svc.queue.Len() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, StateStarting, h.svc.State())

	h.start(t)
	require.NoError(t, <-done)
	assert.Equal(t, emitter.Preamble+`,[{"name":"early","full_text":"E"}]`+"\n", h.out.String())
}

func TestService_StoppedRejectsCalls(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	require.ErrorIs(t, h.stop(), context.Canceled)

	err := h.svc.ShowBlock(context.Background(), map[string]any{"name": "a", "full_text": "A"})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, h.svc.Run(context.Background()), ErrAlreadyStarted)
}

func TestService_CallerContext(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.svc.ShowBlock(ctx, map[string]any{"name": "a", "full_text": "A"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_ConcurrentCallers(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				err := h.svc.ShowBlock(context.Background(), map[string]any{
					"name":      fmt.Sprintf("gen%02d", i),
					"full_text": fmt.Sprintf("%d", j),
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	lines := h.statusLines()
	require.Len(t, lines, 200)
	last := lines[len(lines)-1]
	for i := 0; i < 20; i++ {
		assert.Contains(t, last, fmt.Sprintf(`{"name":"gen%02d","full_text":"9"}`, i))
	}
}

func TestService_GeneratorLog(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(t, Options{Logger: logger})

	h.svc.GeneratorLog(LogDebug, "clock", "tick")
	h.svc.GeneratorLog(LogError, "disk", "df failed")
	h.svc.GeneratorLog(7, "net", "odd level")

	out := logs.String()
	assert.Contains(t, out, `level=DEBUG msg=tick generator=clock`)
	assert.Contains(t, out, `level=ERROR msg="df failed" generator=disk`)
	assert.Contains(t, out, `level=INFO msg="odd level" generator=net level=7`)
}

func TestService_Journal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	h := newHarness(t, Options{Journal: j, SessionIDs: testutil.NewSequenceIDs("session")})
	h.start(t)

	h.show(t, map[string]any{"name": "a", "full_text": "A"})
	_ = h.svc.ShowBlock(context.Background(), map[string]any{"name": "a", "align": "middle"})
	h.svc.GetConfig("a")
	require.ErrorIs(t, h.stop(), context.Canceled)

	ctx := context.Background()
	assert.Equal(t, "session-1", j.Session())

	calls, err := j.Calls(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, journal.OpShowBlock, calls[0].Op)
	assert.Empty(t, calls[0].Error)
	assert.Equal(t, journal.OpShowBlock, calls[1].Op)
	assert.NotEmpty(t, calls[1].Error)
	assert.Equal(t, journal.OpGetConfig, calls[2].Op)

	var replayed testutil.SyncBuffer
	n, err := journal.Replay(ctx, j, "", emitter.New(&replayed))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, h.out.String(), replayed.String())
	assert.True(t, strings.HasPrefix(replayed.String(), emitter.Preamble))
}
