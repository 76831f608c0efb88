package replay

import (
	"context"
	"time"

	"github.com/banshee-data/vdrplay/internal/timeutil"
)

// Pacer computes how long to wait before emitting each record so that
// inter-message spacing matches the captured timing, optionally scaled.
//
// The schedule is anchored at the first record: with t0 the first record's
// timestamp and w0 the wall-clock instant it was emitted, record i targets
// w0 + (t_i - t0)/speed. An out-of-order timestamp contributes a zero delta
// rather than a negative one, so emission never reorders and never runs
// early relative to the previous record. When emission falls behind (slow
// I/O) the pacer does not burst to catch up: late records go out
// immediately and later targets stay anchored to the original schedule, so
// playback converges naturally.
type Pacer struct {
	clock timeutil.Clock
	speed float64

	started bool
	w0      time.Time
	prev    time.Time
	offset  time.Duration
}

// NewPacer creates a Pacer. speed must be positive (enforced upstream by
// Config.Validate).
func NewPacer(clock timeutil.Clock, speed float64) *Pacer {
	return &Pacer{clock: clock, speed: speed}
}

// Wait blocks until the record with the given captured timestamp is due.
// The first call anchors the schedule and returns immediately. Cancellable
// via ctx.
func (p *Pacer) Wait(ctx context.Context, ts time.Time) error {
	if !p.started {
		p.started = true
		p.w0 = p.clock.Now()
		p.prev = ts
		p.offset = 0
		return ctx.Err()
	}

	delta := ts.Sub(p.prev)
	if delta < 0 {
		delta = 0
	}
	p.prev = ts
	p.offset += time.Duration(float64(delta) / p.speed)

	wait := p.Target().Sub(p.clock.Now())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := p.clock.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// Target returns the scheduled emission instant of the record most recently
// passed to Wait. Only meaningful once Wait has been called.
func (p *Pacer) Target() time.Time {
	return p.w0.Add(p.offset)
}

// Lateness returns how far behind schedule the current emission is.
// Negative values mean the timer fired early (bounded by timer resolution).
func (p *Pacer) Lateness() time.Duration {
	return p.clock.Now().Sub(p.Target())
}

// Reset clears the anchor so the next Wait starts a fresh schedule. Used
// between playback passes.
func (p *Pacer) Reset() {
	p.started = false
	p.offset = 0
}

// Reanchor moves the schedule anchor so the current schedule position
// coincides with now. Used after a reconnection pause so the remaining log
// resumes at its original cadence instead of bursting through the backlog.
func (p *Pacer) Reanchor() {
	if !p.started {
		return
	}
	p.w0 = p.clock.Now().Add(-p.offset)
}
