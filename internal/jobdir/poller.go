package jobdir

// lineSource is whatever a StreamPoller tails raw lines from — satisfied by
// *StreamFile. A narrow interface keeps the poller testable without a real
// file on disk.
type lineSource interface {
	NextLine(producerDone bool) (string, bool, error)
}

// bufItem is one entry in a stream's raw line buffer: either a text
// line awaiting processing or an installed ESYNC barrier.
type bufItem struct {
	isBarrier bool
	barrier   Barrier
	line      string
}

// StreamPoller tails one of stdout/stderr, applies marker
// recognition and comment-group coalescing, and emits resolved
// harness events until its buffer runs dry or it lands on an ESYNC barrier
// it must not cross.
type StreamPoller struct {
	tag    StreamTag
	source lineSource
	parser LineParser
	debug  bool
	sep    string
	router *eventsRouter
	jobID  string
	runID  string

	buffer []bufItem
	group  *commentGroup
}

func newStreamPoller(tag StreamTag, source lineSource, parser LineParser, debug bool, sep string, router *eventsRouter, jobID, runID string) *StreamPoller {
	if parser == nil {
		parser = passthroughParser
	}
	return &StreamPoller{
		tag:    tag,
		source: source,
		parser: parser,
		debug:  debug,
		sep:    sep,
		router: router,
		jobID:  jobID,
		runID:  runID,
	}
}

// fill tails up to max (0 = unbounded) new raw lines from source into the
// buffer. It does not process them — that's poll's job — keeping the
// "how many new items per fill" memory knob independent of how far a
// single poll pass can advance.
func (p *StreamPoller) fill(producerDone bool, max int) error {
	n := 0
	for max == 0 || n < max {
		line, ok, err := p.source.NextLine(producerDone)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		p.buffer = append(p.buffer, bufItem{line: line})
		n++
	}
	return nil
}

// pending reports whether the buffer holds anything at all — barrier or
// text — which the lifecycle gate uses to withhold exit detection.
func (p *StreamPoller) pending() bool {
	return len(p.buffer) > 0
}

// atBarrier reports whether the head of the buffer is an installed ESYNC
// barrier awaiting release.
func (p *StreamPoller) atBarrier() bool {
	return len(p.buffer) > 0 && p.buffer[0].isBarrier
}

// peekBarrier returns the barrier at the head of the buffer without
// consuming it.
func (p *StreamPoller) peekBarrier() (Barrier, bool) {
	if !p.atBarrier() {
		return Barrier{}, false
	}
	return p.buffer[0].barrier, true
}

// popBarrierHead consumes the barrier at the head of the buffer.
func (p *StreamPoller) popBarrierHead() Barrier {
	b := p.buffer[0].barrier
	p.buffer = p.buffer[1:]
	return b
}

// poll processes the buffer, emitting events via emit until max (0 =
// unbounded) counted steps have been taken, the buffer is exhausted, or an
// ESYNC barrier reaches the head. A marker line is handled as one unit: it
// counts a group flush even when no group is open, and it may emit both a
// flushed group and its leading text, so the number of events emitted in
// one call can differ from max. It can return having hit a barrier within the
// very same call that also produced the text immediately preceding it, and
// it may also return with nothing at all if the buffer starts empty or
// already sits at a barrier — both are valid "no forward progress yet"
// outcomes the synchronizer checks for.
func (p *StreamPoller) poll(max int, emit eventSink) error {
	count := 0
	for {
		if max > 0 && count >= max {
			return nil
		}
		if len(p.buffer) == 0 {
			return nil
		}
		if p.buffer[0].isBarrier {
			return nil // step 1: must not cross an installed barrier
		}

		line := p.buffer[0].line

		if mm, found, err := findMarker(line, p.sep); err != nil {
			return err
		} else if found {
			p.flushGroup(emit)
			count++
			if mm.before != "" {
				if prefix, isComment := commentPrefix(mm.before); isComment {
					// re-feed the residue through comment detection and
					// grouping once, then close the group immediately: the
					// marker boundary ends it before the barrier installs.
					p.group = newCommentGroup(prefix, p.tag)
					p.group.add(mm.before)
					p.flushGroup(emit)
					count++
				} else {
					p.emitLine(mm.before, emit)
					count++
				}
			}
			if mm.event != nil {
				p.router.enqueueInline(mm.event)
			}
			p.buffer[0] = bufItem{isBarrier: true, barrier: mm.barrier}
			if mm.after != "" {
				p.prependToNext(mm.after)
			}
			return nil
		}

		if prefix, isComment := commentPrefix(line); isComment {
			if p.group != nil && p.group.prefix != prefix {
				p.flushGroup(emit)
				count++
				continue // line stays at buffer[0]; re-examined next loop with no group active
			}
			if p.group == nil {
				p.group = newCommentGroup(prefix, p.tag)
			}
			p.group.add(line)
			p.buffer = p.buffer[1:]
			continue
		}

		if p.group != nil {
			p.flushGroup(emit)
			count++
			continue // line stays at buffer[0]; re-examined next loop as a plain line
		}

		p.emitLine(line, emit)
		p.buffer = p.buffer[1:]
		count++
	}
}

// prependToNext places trailing marker residue ahead of whatever is
// currently queued as the next buffer item, creating that slot if the buffer only held the marker line.
func (p *StreamPoller) prependToNext(residue string) {
	if len(p.buffer) >= 2 {
		p.buffer[1].line = residue + p.buffer[1].line
		return
	}
	p.buffer = append(p.buffer, bufItem{line: residue})
}

func (p *StreamPoller) flushGroup(emit eventSink) {
	if p.group == nil {
		return
	}
	facet, id := decodeFacet(p.group.raw(p.debug))
	emit(HarnessEvent{EventID: id, JobID: p.jobID, RunID: p.runID, FacetData: facet})
	p.group = nil
}

func (p *StreamPoller) emitLine(line string, emit eventSink) {
	raw, ok := p.parser(line)
	if !ok {
		raw = synthesizeInfo(line, p.tag, p.debug)
	}
	facet, id := decodeFacet(raw)
	emit(HarnessEvent{EventID: id, JobID: p.jobID, RunID: p.runID, FacetData: facet})
}
