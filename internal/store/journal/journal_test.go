package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaivest/internal/stream"
)

func TestAppendAndReplay(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	records := []stream.Record{
		{Event: "agent_start", Data: `{"agent":"fundamental","agent_name":"Fundamental Analyst"}`},
		{Data: `{"type":"token","agent":"fundamental","text":"Rev"}`},
		{Data: `{"decision":"buy","final_statement":"Go."}`},
	}
	for i, rec := range records {
		require.NoError(t, j.Append("sess-1", i+1, rec))
	}
	// A second session must not bleed into the first.
	require.NoError(t, j.Append("sess-2", 1, stream.Record{Data: `{"other":"stream"}`}))

	got, err := j.Replay("sess-1")
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// Replayed records decode like live ones.
	ev := stream.Decode(got[0])
	_, ok := ev.(stream.AgentStartEvent)
	assert.True(t, ok)
}

func TestReplayUnknownSessionIsEmpty(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Replay("nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
