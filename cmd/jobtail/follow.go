package main

import (
	"context"
	"time"

	"github.com/steveyegge/vc/internal/jobdir"
)

// drive polls streamer until it produces a harness_job_exit event, ctx is
// cancelled, or (when follow is false) the job's current backlog is
// drained without having exited yet.
func drive(ctx context.Context, streamer *jobdir.Streamer, jobID string, interval time.Duration, follow bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		batch, err := streamer.Poll(0)
		if err != nil {
			return err
		}
		for _, e := range batch {
			displayEvent(jobID, e)
			if _, ok := e.FacetData["harness_job_exit"]; ok {
				return nil
			}
		}
		if !follow && len(batch) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
