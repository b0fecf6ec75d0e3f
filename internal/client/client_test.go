package client

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstatus/internal/config"
	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/service"
	"github.com/roach88/dstatus/internal/testutil"
	"github.com/roach88/dstatus/internal/transport/socket"
)

// startStack runs a service with the socket transport and returns a
// client connected to it plus the bar output.
func startStack(t *testing.T, cfgDoc string) (*Client, *testutil.SyncBuffer) {
	t.Helper()
	cfg, err := config.Parse([]byte(cfgDoc), config.FormatYAML)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	out := &testutil.SyncBuffer{}
	svc := service.New(service.Options{Config: cfg, Emitter: emitter.New(out), Logger: logger})

	path := filepath.Join(t.TempDir(), "s.sock")
	srv := socket.NewServer(path, logger)
	socket.Register(srv, svc)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan struct{})
	runDone := make(chan struct{})
	go func() { srv.Serve(ctx); close(serveDone) }()
	go func() { svc.Run(ctx); close(runDone) }()
	t.Cleanup(func() {
		cancel()
		<-serveDone
		<-runDone
	})

	require.Eventually(t, func() bool { return svc.State() == service.StateRunning }, 5*time.Second, time.Millisecond)
	return New(path), out
}

func TestClient_RoundTrip(t *testing.T) {
	c, out := startStack(t, "clock:\n  color: \"#ffffff\"\n")
	ctx := context.Background()

	raw, err := c.GetConfigJSON(ctx, "clock")
	require.NoError(t, err)
	assert.Equal(t, `{"color":"#ffffff"}`, raw)

	cfg, err := c.GetConfig(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, cfg)

	require.NoError(t, c.ShowBlock(ctx, map[string]any{"name": "clock", "full_text": "12:00"}))
	assert.Equal(t, emitter.Preamble+`,[{"name":"clock","full_text":"12:00","color":"#ffffff"}]`+"\n", out.String())

	require.NoError(t, c.Log(ctx, 2, "clock", "hello"))
}

func TestClient_InvalidBlock(t *testing.T) {
	c, out := startStack(t, "")
	err := c.ShowBlock(context.Background(), map[string]any{"name": "x", "align": "middle"})

	var se *ServiceError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, socket.ActionShowBlock, se.Action)
	assert.Contains(t, se.Message, "align")
	assert.Equal(t, emitter.Preamble, out.String())
}

func TestClient_NoServer(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.sock"))
	err := c.ShowBlock(context.Background(), map[string]any{"name": "x"})
	require.Error(t, err)
	var se *ServiceError
	assert.False(t, errors.As(err, &se))
}

func TestBlock_DedupesAndClears(t *testing.T) {
	c, out := startStack(t, "clock:\n  format: \"%H\"\n")
	ctx := context.Background()

	var sends int
	counting := &countingSender{Client: c, n: &sends}
	b, err := NewBlock(ctx, counting, "clock")
	require.NoError(t, err)
	assert.Equal(t, "%H", b.Config["format"])

	vars := map[string]string{"h": "12", "hm": "12:00"}
	require.NoError(t, b.Show(ctx, "%hm", ShowOptions{Vars: vars}))
	require.NoError(t, b.Show(ctx, "%hm", ShowOptions{Vars: vars}))
	assert.Equal(t, 1, sends)

	require.NoError(t, b.Show(ctx, "<b>%h</b>", ShowOptions{Vars: vars, Markup: "pango", Instance: "a"}))
	require.NoError(t, b.Clear(ctx, ""))
	require.NoError(t, b.Show(ctx, "%hm", ShowOptions{Vars: vars}))
	assert.Equal(t, 4, sends)

	lines := out.Lines()
	assert.Equal(t, `,[{"name":"clock","instance":"a","full_text":"<b>12</b>","markup":"pango"},{"name":"clock","full_text":"12:00"}]`, lines[len(lines)-1])
}

type countingSender struct {
	*Client
	n *int
}

func (s *countingSender) ShowBlock(ctx context.Context, fields map[string]any) error {
	*s.n++
	return s.Client.ShowBlock(ctx, fields)
}

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		name string
		text string
		vars map[string]string
		want string
	}{
		{"no vars", "%a", nil, "%a"},
		{"simple", "up %up", map[string]string{"up": "3d"}, "up 3d"},
		{"longest first", "%date %d", map[string]string{"d": "D", "date": "2026-10-17"}, "2026-10-17 D"},
		{"repeated", "%x%x", map[string]string{"x": "1"}, "11"},
		{"unknown left alone", "%y", map[string]string{"x": "1"}, "%y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandTemplate(tt.text, tt.vars))
		})
	}
}
