package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserLinePairFraming(t *testing.T) {
	p := NewParser()
	recs := p.Feed("event: agent_start\ndata: {\"agent\":\"fundamental\"}\n\n")
	require.Len(t, recs, 1)
	assert.Equal(t, "agent_start", recs[0].Event)
	assert.Equal(t, `{"agent":"fundamental"}`, recs[0].Data)
}

func TestParserChunkBoundaryMidLine(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed("data: {\"agent\":\"fun"))
	assert.Empty(t, p.Feed("damental\",\"text\":\"Rev\"}"))
	recs := p.Feed("\n\n")
	require.Len(t, recs, 1)
	assert.Equal(t, `{"agent":"fundamental","text":"Rev"}`, recs[0].Data)
}

func TestParserMultipleRecordsOneChunk(t *testing.T) {
	p := NewParser()
	recs := p.Feed("data: one\n\ndata: two\n\ndata: three\n\n")
	require.Len(t, recs, 3)
	assert.Equal(t, "one", recs[0].Data)
	assert.Equal(t, "two", recs[1].Data)
	assert.Equal(t, "three", recs[2].Data)
}

func TestParserRawConcatenationFraming(t *testing.T) {
	p := NewParser()
	recs := p.Feed("{\"round\":1,\n\"description\":\"opening\"}\n\n")
	require.Len(t, recs, 1)
	assert.Equal(t, "{\"round\":1,\n\"description\":\"opening\"}", recs[0].Data)
}

func TestParserCRLF(t *testing.T) {
	p := NewParser()
	recs := p.Feed("event: decision\r\ndata: {\"x\":1}\r\n\r\n")
	require.Len(t, recs, 1)
	assert.Equal(t, "decision", recs[0].Event)
	assert.Equal(t, `{"x":1}`, recs[0].Data)
}

func TestParserEmptyDataDiscarded(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed("event: ping\n\n"))
	assert.Empty(t, p.Feed(": keep-alive\n\n"))
}

func TestParserFlushPendingRecord(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed("data: {\"tail\":true}"))
	recs := p.Flush()
	require.Len(t, recs, 1)
	assert.Equal(t, `{"tail":true}`, recs[0].Data)
	assert.Empty(t, p.Flush())
}

func TestParserIgnoresIDAndRetryFields(t *testing.T) {
	p := NewParser()
	recs := p.Feed("id: 42\nretry: 3000\ndata: payload\n\n")
	require.Len(t, recs, 1)
	assert.Equal(t, "payload", recs[0].Data)
}

func TestParserMultiLineData(t *testing.T) {
	p := NewParser()
	recs := p.Feed("data: line one\ndata: line two\n\n")
	require.Len(t, recs, 1)
	assert.Equal(t, "line one\nline two", recs[0].Data)
}
