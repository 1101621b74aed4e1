package jobdir

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// shardKey identifies one producer thread's structured-event queue.
type shardKey struct {
	PID int64
	TID int64
}

// shard pairs a tailed JSONL file with the (pid,tid) its filename encodes.
type shard struct {
	key  shardKey
	file *JSONLFile
}

// eventsRouter keeps one JSONLFile per events/*.jsonl shard,
// re-scanning the directory on every fill so shards that appear after
// construction are picked up, and maintains the per-(pid,tid) queues the
// synchronizer drains against ESYNC barriers.
type eventsRouter struct {
	dir    string
	sep    string
	shards map[string]*shard // keyed by filename
	queues map[shardKey][]*RawEvent
	order  []shardKey // first-seen order, for deterministic terminal-flush draining
}

func newEventsRouter(dir, sep string) *eventsRouter {
	return &eventsRouter{
		dir:    dir,
		sep:    sep,
		shards: map[string]*shard{},
		queues: map[shardKey][]*RawEvent{},
	}
}

// scan picks up any events-<pid><sep><tid>.jsonl shard not already tracked.
func (r *eventsRouter) scan() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fatalf(ErrEventsDirOpen, "%v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if _, known := r.shards[name]; known {
			continue
		}
		key, ok := strings.CutPrefix(name, "events-")
		if !ok {
			continue
		}
		key, ok = strings.CutSuffix(key, ".jsonl")
		if !ok {
			continue
		}
		parts := strings.Split(key, r.sep)
		if len(parts) != 2 {
			continue
		}
		pid, err1 := strconv.ParseInt(parts[0], 10, 64)
		tid, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		sk := shardKey{PID: pid, TID: tid}
		r.shards[name] = &shard{key: sk, file: NewJSONLFile(filepath.Join(r.dir, name))}
		r.touchOrder(sk)
	}
	return nil
}

func (r *eventsRouter) touchOrder(key shardKey) {
	if _, ok := r.queues[key]; !ok {
		r.queues[key] = nil
		r.order = append(r.order, key)
	}
}

// fill re-scans the directory and tails up to max (0 = unbounded) new
// records per shard into their queues.
func (r *eventsRouter) fill(producerDone bool, max int) error {
	if err := r.scan(); err != nil {
		return err
	}
	for _, sh := range r.shards {
		n := 0
		for max == 0 || n < max {
			rec, ok, err := sh.file.NextRecord(producerDone)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			r.touchOrder(sh.key)
			r.queues[sh.key] = append(r.queues[sh.key], rec)
			n++
		}
	}
	return nil
}

// enqueueInline adds a record carried by an inline T2-HARNESS-EVENT marker
// to the same queue a jsonl shard would have fed it into. The same inline
// event is naturally delivered on both stdout and stderr (each stream's
// marker also forms its own barrier), so a record with a stream_id already
// queued for this (pid,tid) is dropped here rather than queued a second
// time — otherwise the orphaned copy would sit unclaimed forever once the
// first copy is released, leaving this queue permanently non-empty.
func (r *eventsRouter) enqueueInline(rec *RawEvent) {
	key := shardKey{PID: rec.PID, TID: rec.TID}
	for _, queued := range r.queues[key] {
		if queued.StreamID == rec.StreamID {
			return
		}
	}
	r.touchOrder(key)
	r.queues[key] = append(r.queues[key], rec)
}

// peek returns the head of a shard's queue without consuming it.
func (r *eventsRouter) peek(pid, tid int64) (*RawEvent, bool) {
	q := r.queues[shardKey{PID: pid, TID: tid}]
	if len(q) == 0 {
		return nil, false
	}
	return q[0], true
}

// pop consumes and returns the head of a shard's queue.
func (r *eventsRouter) pop(pid, tid int64) (*RawEvent, bool) {
	key := shardKey{PID: pid, TID: tid}
	q := r.queues[key]
	if len(q) == 0 {
		return nil, false
	}
	r.queues[key] = q[1:]
	return q[0], true
}

// pending reports whether any shard queue still holds records, which the
// lifecycle gate uses to withhold exit detection.
func (r *eventsRouter) pending() bool {
	for _, q := range r.queues {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// drainAll empties every shard queue in first-seen shard order, preserving
// per-(pid,tid) order, for the terminal flush.
func (r *eventsRouter) drainAll() []*RawEvent {
	var out []*RawEvent
	for _, key := range r.order {
		out = append(out, r.queues[key]...)
		r.queues[key] = nil
	}
	return out
}
