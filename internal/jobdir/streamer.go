package jobdir

import "path/filepath"

// Config configures a Streamer. RunID, JobID, and JobRoot are
// required; everything else has a working default. Configuration is
// passed as constructor parameters rather than package-level flags or
// environment lookups.
type Config struct {
	RunID   string
	JobID   string
	JobRoot string

	// IPCSeparator joins pid/tid/stream_id in ESYNC payloads and shard
	// filenames. Defaults to DefaultSeparator.
	IPCSeparator string

	// StdoutParser/StderrParser are the opaque TAP line parsers; nil means every line is synthesized as a plain info
	// facet.
	StdoutParser LineParser
	StderrParser LineParser

	// Debug is threaded into every synthesized facet's debug field.
	Debug bool
}

func (c Config) validate() error {
	if c.RunID == "" {
		return &ConfigError{Field: "run_id"}
	}
	if c.JobID == "" {
		return &ConfigError{Field: "job_id"}
	}
	if c.JobRoot == "" {
		return &ConfigError{Field: "job_root"}
	}
	return nil
}

// Streamer is the package's sole public entry point: one instance per
// running job, owning every file handle and buffer that job's three
// streams need. It is not safe for concurrent use — one goroutine
// drives one Streamer's Poll calls.
type Streamer struct {
	cfg Config
	sep string

	startFile *ValueFile
	exitFile  *ValueFile
	fileFile  *ValueFile

	stdoutFile *StreamFile
	stderrFile *StreamFile

	router *eventsRouter
	stdout *StreamPoller
	stderr *StreamPoller
	sync   *synchronizer
	life   *lifecycle

	lastStamp *float64
	pending   []HarnessEvent
}

// New constructs a Streamer for one job directory. It does not touch the
// filesystem beyond what ValueFile.Exists/TailReader do lazily on first
// Poll.
func New(cfg Config) (*Streamer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sep := cfg.IPCSeparator
	if sep == "" {
		sep = DefaultSeparator
	}

	startFile := NewValueFile(filepath.Join(cfg.JobRoot, "start"))
	exitFile := NewValueFile(filepath.Join(cfg.JobRoot, "exit"))
	fileFile := NewValueFile(filepath.Join(cfg.JobRoot, "file"))
	stdoutPath := filepath.Join(cfg.JobRoot, "stdout")
	stderrPath := filepath.Join(cfg.JobRoot, "stderr")

	stdoutFile := NewStreamFile(stdoutPath)
	stderrFile := NewStreamFile(stderrPath)

	router := newEventsRouter(filepath.Join(cfg.JobRoot, "events"), sep)
	stdout := newStreamPoller(TagStdout, stdoutFile, cfg.StdoutParser, cfg.Debug, sep, router, cfg.JobID, cfg.RunID)
	stderr := newStreamPoller(TagStderr, stderrFile, cfg.StderrParser, cfg.Debug, sep, router, cfg.JobID, cfg.RunID)

	return &Streamer{
		cfg:        cfg,
		sep:        sep,
		startFile:  startFile,
		exitFile:   exitFile,
		fileFile:   fileFile,
		stdoutFile: stdoutFile,
		stderrFile: stderrFile,
		router:     router,
		stdout:     stdout,
		stderr:     stderr,
		sync:       newSynchronizer(stdout, stderr, router, cfg.JobID, cfg.RunID),
		life:       newLifecycle(cfg.JobRoot, startFile, exitFile, fileFile, stdoutPath, stderrPath),
	}, nil
}

// SetRunnerExited records that the outer job runner has died without the
// producer ever writing its own `exit` file; the next Poll will
// synthesize an exit event with code -1 once streams drain.
func (s *Streamer) SetRunnerExited() {
	s.life.setRunnerExited()
}

// File exposes one of the three value-files by kind, for callers that want
// to inspect `start`/`exit`/`file` directly rather than through the
// emitted stream. kind must be FileStart, FileExit, or FileScript.
func (s *Streamer) File(kind FileKind) (*ValueFile, error) {
	switch kind {
	case FileStart:
		return s.startFile, nil
	case FileExit:
		return s.exitFile, nil
	case FileScript:
		return s.fileFile, nil
	default:
		return nil, &UnknownFileKeyError{Kind: kind}
	}
}

// Poll advances the streamer as far as it can and returns up to max newly ready events (max <= 0 means
// unbounded). Poll never blocks; if no forward progress is possible it
// returns an empty, non-nil slice.
//
// Internally, one full unbounded pass of buffer-filling and advancing
// always runs regardless of max — only the slice returned to the caller is
// capped — so that many small Poll(k) calls and one Poll(0) call produce
// the identical underlying event sequence, just sliced differently.
func (s *Streamer) Poll(max int) ([]HarnessEvent, error) {
	if err := s.fillAndAdvance(); err != nil {
		return nil, err
	}

	if max <= 0 || max >= len(s.pending) {
		out := s.pending
		s.pending = nil
		if out == nil {
			out = []HarnessEvent{}
		}
		return s.withStamps(out), nil
	}
	out := s.pending[:max]
	s.pending = s.pending[max:]
	return s.withStamps(out), nil
}

// withStamps applies stamp inheritance across the events about to be
// returned, in emission order, before handing them to the caller. The
// synthesized harness_job_exit event never inherits: it keeps the stamp
// parsed from the exit file, which is nil when there is none.
func (s *Streamer) withStamps(events []HarnessEvent) []HarnessEvent {
	for i := range events {
		if events[i].Stamp != nil {
			v := *events[i].Stamp
			s.lastStamp = &v
		} else if _, isExit := events[i].FacetData["harness_job_exit"]; !isExit {
			events[i].Stamp = s.lastStamp
		}
	}
	return events
}

// fillAndAdvance runs the lifecycle gate and drives the synchronizer
// forward one pass (plus one more, after an unbounded race-proofing fill,
// the first time exit is observed), appending any newly ready events to
// the internal pending queue.
func (s *Streamer) fillAndAdvance() error {
	if s.life.state == stateDone {
		return nil
	}

	sink := func(e HarnessEvent) { s.pending = append(s.pending, e) }

	if !s.life.checkStart() {
		return nil
	}
	if !s.life.startEmitted {
		s.pending = append(s.pending, s.life.startEvent(s.cfg.JobID, s.cfg.RunID))
	}

	producerDone := s.life.state == stateFinishing

	if err := s.stdout.fill(producerDone, 0); err != nil {
		return err
	}
	if err := s.stderr.fill(producerDone, 0); err != nil {
		return err
	}
	if err := s.router.fill(producerDone, 0); err != nil {
		return err
	}
	if err := s.sync.advance(0, sink); err != nil {
		return err
	}

	streamsPending := s.stdout.pending() || s.stderr.pending() || s.router.pending()
	if s.life.checkExit(streamsPending) {
		if s.life.needsRacePass() {
			if err := s.stdout.fill(true, 0); err != nil {
				return err
			}
			if err := s.stderr.fill(true, 0); err != nil {
				return err
			}
			if err := s.router.fill(true, 0); err != nil {
				return err
			}
			if err := s.sync.advance(0, sink); err != nil {
				return err
			}
		}
		if !s.stdout.pending() && !s.stderr.pending() && !s.router.pending() {
			s.sync.terminalFlush(sink)
			s.pending = append(s.pending, s.life.exitEvent(s.cfg.JobID, s.cfg.RunID))
		}
	}

	return nil
}

// Close releases every file handle the streamer has opened.
func (s *Streamer) Close() error {
	_ = s.stdoutFile.Close()
	_ = s.stderrFile.Close()
	for _, sh := range s.router.shards {
		_ = sh.file.Close()
	}
	return nil
}
