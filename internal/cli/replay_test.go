package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstatus/internal/journal"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.StartSession(ctx, "session-1", "/home/user/.i3-dstatus.conf"))
	require.NoError(t, j.RecordCall(ctx, journal.Call{Op: journal.OpGetConfig, Name: "clock"}))
	require.NoError(t, j.RecordCall(ctx, journal.Call{
		Op:   journal.OpShowBlock,
		Name: "clock",
		Args: map[string]any{"name": "clock", "full_text": "12:00"},
	}))
	require.NoError(t, j.RecordEmission(ctx, []byte(`[{"name":"clock","full_text":"12:00"}]`)))
	require.NoError(t, j.RecordCall(ctx, journal.Call{
		Op:       journal.OpShowBlock,
		Name:     "disk",
		Instance: "/home",
		Error:    `invalid block field "align": must be left, center or right`,
	}))
	require.NoError(t, j.RecordEmission(ctx, []byte(`[{"name":"clock","full_text":"12:01"}]`)))
	return path
}

func TestReplay_Stream(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--journal", path)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "replay_stream", []byte(out))
}

func TestReplay_Calls(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--journal", path, "--calls", "--session", "session-1")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "replay_calls", []byte(out))
}

func TestReplay_ListJSON(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--journal", path, "--list", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []SessionSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "session-1", resp.Data[0].ID)
	assert.Equal(t, "/home/user/.i3-dstatus.conf", resp.Data[0].ConfigPath)
}

func TestReplay_EmptyJournal(t *testing.T) {
	out, err := execute(t, "replay", "--journal", filepath.Join(t.TempDir(), "empty.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E006]")
}

func TestReplay_RequiresJournalFlag(t *testing.T) {
	_, err := execute(t, "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal")
}
