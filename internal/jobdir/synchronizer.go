package jobdir

// seenKey dedups a structured event's release across the stdout and
// stderr barriers that might both carry it, keyed by (tid,pid,stream_id).
type seenKey struct {
	TID      int64
	PID      int64
	StreamID int64
}

// synchronizer drives both stream pollers forward and releases a
// structured event only once both stdout and stderr have observed its
// ESYNC barrier, keeping free-form text ordered around structured
// events even though stdout and stderr are not ordered against each other.
type synchronizer struct {
	stdout *StreamPoller
	stderr *StreamPoller
	router *eventsRouter
	seen   map[seenKey]struct{}
	jobID  string
	runID  string
}

func newSynchronizer(stdout, stderr *StreamPoller, router *eventsRouter, jobID, runID string) *synchronizer {
	return &synchronizer{
		stdout: stdout,
		stderr: stderr,
		router: router,
		seen:   map[seenKey]struct{}{},
		jobID:  jobID,
		runID:  runID,
	}
}

// advance drives both pollers one pass forward and, if both now sit at a
// barrier, attempts to release the structured event(s) they name.
func (s *synchronizer) advance(max int, emit eventSink) error {
	if err := s.stdout.poll(max, emit); err != nil {
		return err
	}
	if err := s.stderr.poll(max, emit); err != nil {
		return err
	}
	if s.stdout.atBarrier() && s.stderr.atBarrier() {
		if err := s.release(s.stdout, emit); err != nil {
			return err
		}
		if err := s.release(s.stderr, emit); err != nil {
			return err
		}
	}
	return nil
}

// release resolves the barrier at the head of p's buffer. If the matching
// structured event hasn't been tailed in yet, the barrier is left in place
// and nothing happens this pass — that's the deliberate bottleneck.
func (s *synchronizer) release(p *StreamPoller, emit eventSink) error {
	b, ok := p.peekBarrier()
	if !ok {
		return nil
	}
	key := seenKey{TID: b.TID, PID: b.PID, StreamID: b.StreamID}
	if _, dup := s.seen[key]; dup {
		p.popBarrierHead()
		return nil
	}
	rec, ok := s.router.peek(b.PID, b.TID)
	if !ok {
		return nil // not yet available; retry on the next advance
	}
	if rec.StreamID != b.StreamID {
		return fatalf(ErrOrderingViolation, "barrier stream_id=%d but queued event stream_id=%d for pid=%d tid=%d", b.StreamID, rec.StreamID, b.PID, b.TID)
	}
	s.router.pop(b.PID, b.TID)
	p.popBarrierHead()
	s.seen[key] = struct{}{}
	emit(s.materialize(rec))
	return nil
}

// terminalFlush flushes any residual comment groups on both streams, then
// drains every remaining structured-event queue directly to emit. Any
// drained record whose (tid,pid,stream_id) was already released is skipped
// rather than re-emitted; enqueueInline already drops a second inline copy
// while the first is still queued, so this check is a second line of
// defense.
func (s *synchronizer) terminalFlush(emit eventSink) {
	s.stdout.flushGroup(emit)
	s.stderr.flushGroup(emit)
	for _, rec := range s.router.drainAll() {
		key := seenKey{TID: rec.TID, PID: rec.PID, StreamID: rec.StreamID}
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		emit(s.materialize(rec))
	}
}

// materialize decodes a RawEvent's deferred facet_data into the final
// HarnessEvent shape, stamping it with the job/run identifiers every emitted
// event carries. Stamp carry-forward across the whole emitted sequence
// happens centrally in Streamer.Poll, not here.
func (s *synchronizer) materialize(rec *RawEvent) HarnessEvent {
	facet, id := decodeFacet(rec.FacetRaw)
	return HarnessEvent{EventID: id, JobID: s.jobID, RunID: s.runID, Stamp: rec.Stamp, FacetData: facet}
}
