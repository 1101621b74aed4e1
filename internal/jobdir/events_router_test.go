package jobdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShard(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestEventsRouterMissingDirIsNotFatal(t *testing.T) {
	r := newEventsRouter(filepath.Join(t.TempDir(), "nope"), "~")
	require.NoError(t, r.fill(false, 0))
	assert.False(t, r.pending())
}

func TestEventsRouterIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "README.md", "not a shard")
	writeShard(t, dir, "events-bad.jsonl", "also not a shard")
	writeShard(t, dir, "events-1~2.jsonl", `{"pid":1,"tid":2,"stream_id":1,"facet_data":{}}`+"\n")

	r := newEventsRouter(dir, "~")
	require.NoError(t, r.fill(false, 0))

	rec, ok := r.peek(1, 2)
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.StreamID)
	_, ok = r.peek(9, 9)
	assert.False(t, ok)
}

func TestEventsRouterPicksUpShardAppearingLater(t *testing.T) {
	dir := t.TempDir()
	r := newEventsRouter(dir, "~")
	require.NoError(t, r.fill(false, 0))
	assert.False(t, r.pending())

	writeShard(t, dir, "events-5~6.jsonl", `{"pid":5,"tid":6,"stream_id":1,"facet_data":{}}`+"\n")
	require.NoError(t, r.fill(false, 0))

	rec, ok := r.peek(5, 6)
	require.True(t, ok)
	assert.Equal(t, int64(5), rec.PID)
}

func TestEventsRouterDrainAllPreservesFirstSeenOrder(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "events-1~1.jsonl", `{"pid":1,"tid":1,"stream_id":1,"facet_data":{"n":1}}`+"\n")
	writeShard(t, dir, "events-2~2.jsonl", `{"pid":2,"tid":2,"stream_id":1,"facet_data":{"n":2}}`+"\n")

	r := newEventsRouter(dir, "~")
	require.NoError(t, r.fill(false, 0))

	drained := r.drainAll()
	require.Len(t, drained, 2)
	assert.Equal(t, int64(1), drained[0].PID)
	assert.Equal(t, int64(2), drained[1].PID)
	assert.False(t, r.pending())
}

func TestEventsRouterEnqueueInlineJoinsSameQueueAsShard(t *testing.T) {
	r := newEventsRouter(t.TempDir(), "~")
	r.enqueueInline(&RawEvent{PID: 1, TID: 1, StreamID: 1})
	r.enqueueInline(&RawEvent{PID: 1, TID: 1, StreamID: 2})

	first, ok := r.pop(1, 1)
	require.True(t, ok)
	assert.Equal(t, int64(1), first.StreamID)

	second, ok := r.pop(1, 1)
	require.True(t, ok)
	assert.Equal(t, int64(2), second.StreamID)

	assert.False(t, r.pending())
}

func TestEventsRouterEnqueueInlineDropsDuplicateStreamID(t *testing.T) {
	r := newEventsRouter(t.TempDir(), "~")
	r.enqueueInline(&RawEvent{PID: 1, TID: 1, StreamID: 1})
	r.enqueueInline(&RawEvent{PID: 1, TID: 1, StreamID: 1}) // same event, delivered again on the other stream

	_, ok := r.pop(1, 1)
	require.True(t, ok)

	// the duplicate must not have been queued a second time, or this queue
	// would stay non-empty forever once the first copy is claimed.
	assert.False(t, r.pending())
}
