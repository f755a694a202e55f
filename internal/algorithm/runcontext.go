package algorithm

import (
	"context"
	"time"
)

// RunContext is handed to Body.Exec for the duration of one run.
type RunContext struct {
	ctx   context.Context
	props *Properties
	algo  *Algorithm
	info  StartInfo
}

// Context returns the run context. It is cancelled by Worker.Cancel.
func (rc *RunContext) Context() context.Context { return rc.ctx }

// Properties returns the worker's properties.
func (rc *RunContext) Properties() *Properties { return rc.props }

// HandleID returns the id of the handle this run belongs to, zero when unmanaged.
func (rc *RunContext) HandleID() HandleID { return rc.info.HandleID }

// RunID returns the unique id of this run.
func (rc *RunContext) RunID() string { return rc.info.RunID }

// Cancelled reports whether cancellation has been requested.
func (rc *RunContext) Cancelled() bool {
	return rc.ctx.Err() != nil
}

// Checkpoint returns ErrCancelled once cancellation has been requested.
// Bodies call it between units of work.
func (rc *RunContext) Checkpoint() error {
	if rc.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Sleep waits for d or until the run is cancelled.
func (rc *RunContext) Sleep(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-rc.ctx.Done():
		return ErrCancelled
	}
}

// Progress reports a completion fraction in [0, 1] to observers.
func (rc *RunContext) Progress(fraction float64, msg string) {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	rc.algo.notify(rc.info, Notification{Kind: NotifyProgress, Progress: fraction, Message: msg})
}
