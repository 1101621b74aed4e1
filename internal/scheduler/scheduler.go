// Package scheduler multiplexes many concurrently running jobdir.Streamer
// instances behind one polling loop, the way executor.Executor's event loop
// drives many issues from a single ticker instead of one goroutine per
// issue.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/steveyegge/vc/internal/jobdir"
)

// Config configures a Scheduler.
type Config struct {
	// PollInterval is how often the scheduler sweeps every registered job
	// for new events.
	PollInterval time.Duration

	// MaxConcurrentPolls bounds how many jobs are polled in parallel
	// within one sweep. Zero means unbounded.
	MaxConcurrentPolls int

	// PollRateLimit caps how many Poll calls the scheduler issues per
	// second across all jobs combined, smoothing bursts when many jobs
	// finish their backlog at once. A nil/zero value disables limiting.
	PollRateLimit rate.Limit

	// MaxEventsPerPoll is the cap passed as jobdir.Streamer.Poll's max
	// argument on every sweep.
	MaxEventsPerPoll int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	return c
}

// JobEvent pairs a harness event with the job it came from, since a
// Scheduler fans events in from many jobs into one channel.
type JobEvent struct {
	JobID string
	Event jobdir.HarnessEvent
}

// job is the scheduler's bookkeeping for one registered streamer.
type job struct {
	id       string
	streamer *jobdir.Streamer
	done     bool
}

// Scheduler is the multi-job multiplexer: one goroutine sweeps every
// registered job on a ticker, polling each with bounded concurrency and an
// overall rate limit, and fans results out to a single events channel.
type Scheduler struct {
	cfg     Config
	limiter *rate.Limiter

	mu   sync.Mutex
	jobs map[string]*job

	events chan JobEvent
	errs   chan error
}

// New constructs a Scheduler. Call Run to start sweeping; AddJob/RemoveJob
// are safe to call concurrently with a running sweep.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.PollRateLimit > 0 {
		limiter = rate.NewLimiter(cfg.PollRateLimit, 1)
	}
	return &Scheduler{
		cfg:     cfg,
		limiter: limiter,
		jobs:    map[string]*job{},
		events:  make(chan JobEvent, 256),
		errs:    make(chan error, 16),
	}
}

// AddJob registers a new job directory to stream. jobID is the caller's own
// handle for distinguishing JobEvents on the shared channel; it need not
// match jobdir.Config.JobID.
func (s *Scheduler) AddJob(jobID string, jobCfg jobdir.Config) error {
	streamer, err := jobdir.New(jobCfg)
	if err != nil {
		return fmt.Errorf("scheduler: add job %s: %w", jobID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[jobID]; exists {
		return fmt.Errorf("scheduler: job %s already registered", jobID)
	}
	s.jobs[jobID] = &job{id: jobID, streamer: streamer}
	return nil
}

// SetRunnerExited marks a registered job's outer runner as having exited,
// forwarding to jobdir.Streamer.SetRunnerExited.
func (s *Scheduler) SetRunnerExited(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", jobID)
	}
	j.streamer.SetRunnerExited()
	return nil
}

// RemoveJob closes and unregisters a job. It is safe to call on a job that
// has already finished streaming.
func (s *Scheduler) RemoveJob(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	delete(s.jobs, jobID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", jobID)
	}
	return j.streamer.Close()
}

// Events returns the channel every job's harness events are fanned into,
// in arbitrary cross-job interleaving (ordering within one job is
// preserved).
func (s *Scheduler) Events() <-chan JobEvent {
	return s.events
}

// Errors returns the channel fatal per-job errors are reported on. A
// job that errors is automatically removed from the active set.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

// Run sweeps all registered jobs on cfg.PollInterval until ctx is
// cancelled, then closes the events and errors channels. It returns the
// context's error, if any.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.events)
	defer close(s.errs)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				return err
			}
		}
	}
}

// sweep polls every active job once, fanning ready events out and removing
// jobs whose streamer has drained to completion.
func (s *Scheduler) sweep(ctx context.Context) error {
	s.mu.Lock()
	active := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.done {
			active = append(active, j)
		}
	}
	s.mu.Unlock()

	// Deterministic iteration order keeps sweep behavior reproducible in
	// tests even though map iteration order is not.
	sort.Slice(active, func(i, k int) bool { return active[i].id < active[k].id })

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxConcurrentPolls > 0 {
		g.SetLimit(s.cfg.MaxConcurrentPolls)
	}

	for _, j := range active {
		j := j
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			return s.pollJob(gctx, j)
		})
	}

	return g.Wait()
}

func (s *Scheduler) pollJob(ctx context.Context, j *job) error {
	batch, err := j.streamer.Poll(s.cfg.MaxEventsPerPoll)
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, j.id)
		s.mu.Unlock()
		select {
		case s.errs <- fmt.Errorf("scheduler: job %s: %w", j.id, err):
		case <-ctx.Done():
		}
		return nil
	}
	for _, e := range batch {
		select {
		case s.events <- JobEvent{JobID: j.id, Event: e}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, ok := e.FacetData["harness_job_exit"]; ok {
			j.done = true
		}
	}
	return nil
}
