package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/future"
	"github.com/roach88/lockstep/internal/journal"
	"github.com/roach88/lockstep/internal/network"
	"github.com/roach88/lockstep/internal/wire"
)

func dated(m wire.Message, date uint64) wire.Message {
	m.SetDate(date)
	return m
}

// seedJournal records two sessions: s1 with ticks 0 and 1 from one peer,
// s2 with a single tick and no peers.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	host := network.Endpoint{Host: "10.0.0.2", Port: 7000}

	require.NoError(t, j.RecordTick(ctx, network.Tick{
		Session: "s1",
		ID:      0,
		Batches: []network.PeerBatch{{
			Peer: host,
			Batch: future.Batch{
				dated(wire.NewText("hello"), 0),
				dated(wire.NewSync(1, true), 0),
			},
		}},
	}))
	require.NoError(t, j.RecordTick(ctx, network.Tick{
		Session: "s1",
		ID:      1,
		Batches: []network.PeerBatch{{
			Peer:  host,
			Batch: future.Batch{dated(wire.NewSync(2, true), 1)},
		}},
	}))
	require.NoError(t, j.RecordTick(ctx, network.Tick{Session: "s2", ID: 5}))

	return path
}

func executeTrace(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := executeTrace(t, &RootOptions{Format: "text"}, "--session", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := executeTrace(t, &RootOptions{Format: "text"}, "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open journal")
	assert.NoFileExists(t, path)
}

func TestTraceListSessions(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "text"}, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "s2")
}

func TestTraceListSessionsJSON(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "json"}, "--db", path)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   SessionList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []journal.Session{
		{ID: "s1", Ticks: 2, FirstTick: 0, LastTick: 1},
		{ID: "s2", Ticks: 1, FirstTick: 5, LastTick: 5},
	}, resp.Data.Sessions)
}

func TestTraceNoSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := executeTrace(t, &RootOptions{Format: "text"}, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded")
}

func TestTraceSessionText(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "text"}, "--db", path, "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: s1")
	assert.Contains(t, out, "Ticks:   2 (0..1)")
	assert.Contains(t, out, "Messages: 1")
	assert.Contains(t, out, "lockstep.text")
	assert.NotContains(t, out, "lockstep.sync", "markers are hidden without --verbose")
}

func TestTraceSessionVerboseShowsMarkers(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "text", Verbose: true}, "--db", path, "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "lockstep.sync")
}

func TestTraceSessionWithoutMessages(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "text"}, "--db", path, "--session", "s2")
	require.NoError(t, err)
	assert.Contains(t, out, "(no messages)")
}

func TestTraceUnknownSession(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "text"}, "--db", path, "--session", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "No ticks recorded for session: nope")
}

func TestTraceSessionJSONGolden(t *testing.T) {
	path := seedJournal(t)

	out, err := executeTrace(t, &RootOptions{Format: "json"}, "--db", path, "--session", "s1")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "trace_session", []byte(out))
}

func TestSummarize(t *testing.T) {
	ticks := []journal.Tick{
		{ID: 3, Entries: []journal.Entry{{Name: wire.TextName}, {Name: wire.SyncName}}},
		{ID: 4, Entries: []journal.Entry{{Name: wire.TextName}, {Name: wire.TextName}, {Name: wire.SyncName}}},
	}

	assert.Equal(t, TraceStats{Ticks: 2, Messages: 3, Markers: 2, FirstTick: 3, LastTick: 4}, summarize(ticks))
	assert.Equal(t, TraceStats{}, summarize(nil))
}
