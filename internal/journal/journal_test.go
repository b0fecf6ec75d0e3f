package journal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/testutil"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	var version int
	require.NoError(t, j.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, j.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestRecord_RequiresSession(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	assert.True(t, errors.Is(j.RecordEmission(ctx, []byte("[]")), ErrNoSession))
	assert.True(t, errors.Is(j.RecordCall(ctx, Call{Op: OpGetConfig}), ErrNoSession))

	_, err := j.LatestSession(ctx)
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestRecordCall_RoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.StartSession(ctx, "s1", "/home/u/.i3-dstatus.conf"))

	require.NoError(t, j.RecordCall(ctx, Call{
		Op:   OpShowBlock,
		Name: "clock",
		Args: map[string]any{"name": "clock", "full_text": "12:00"},
	}))
	require.NoError(t, j.RecordCall(ctx, Call{
		Op:    OpShowBlock,
		Name:  "bad",
		Args:  map[string]any{"name": "bad", "align": "middle"},
		Error: "invalid block: align: must be left, center or right",
	}))

	calls, err := j.Calls(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, OpShowBlock, calls[0].Op)
	assert.Equal(t, "12:00", calls[0].Args["full_text"])
	assert.Empty(t, calls[0].Error)
	assert.NotEmpty(t, calls[1].Error)
	assert.Less(t, calls[0].Seq, calls[1].Seq)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "/home/u/.i3-dstatus.conf", sessions[0].ConfigPath)
}

func TestReplay_ReproducesStream(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	j.now = testutil.NewStepClock(time.Unix(1_700_000_000, 0), time.Minute).Now
	require.NoError(t, j.StartSession(ctx, "old", ""))
	require.NoError(t, j.RecordEmission(ctx, []byte(`[{"name":"old","full_text":"x"}]`)))
	require.NoError(t, j.StartSession(ctx, "new", ""))

	var original bytes.Buffer
	live := emitter.New(&original)
	live.OnLine(func(line []byte) { require.NoError(t, j.RecordEmission(ctx, line)) })
	require.NoError(t, live.Preamble())
	require.NoError(t, live.EmitRaw([]byte(`[{"name":"a","full_text":"A"}]`)))
	require.NoError(t, live.EmitRaw([]byte(`[{"name":"a","full_text":"B"}]`)))

	var replayed bytes.Buffer
	n, err := Replay(ctx, j, "", emitter.New(&replayed))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, original.String(), replayed.String())

	replayed.Reset()
	n, err = Replay(ctx, j, "old", emitter.New(&replayed))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplay_NoSessions(t *testing.T) {
	j := openTestJournal(t)
	var out bytes.Buffer
	_, err := Replay(context.Background(), j, "", emitter.New(&out))
	assert.True(t, errors.Is(err, ErrNoSession))
	assert.Empty(t, out.String())
}

func TestCalls_TimestampsFromClock(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	j.now = testutil.NewStepClock(base, time.Second).Now

	require.NoError(t, j.StartSession(ctx, "s", ""))
	require.NoError(t, j.RecordCall(ctx, Call{Op: OpGetConfig, Name: "clock"}))
	require.NoError(t, j.RecordCall(ctx, Call{Op: OpReload}))

	calls, err := j.Calls(ctx, "s")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.True(t, calls[0].At.Equal(base.Add(time.Second)))
	assert.True(t, calls[1].At.Equal(base.Add(2*time.Second)))
	assert.Equal(t, map[string]any{}, calls[1].Args)
}
