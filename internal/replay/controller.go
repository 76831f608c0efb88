package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/vdrplay/internal/codec"
	"github.com/banshee-data/vdrplay/internal/monitoring"
	"github.com/banshee-data/vdrplay/internal/timeutil"
	"github.com/banshee-data/vdrplay/internal/transport"
	"github.com/banshee-data/vdrplay/internal/vdrlog"
)

// progressInterval throttles processed-count reporting.
const progressInterval = time.Second

// Controller drives one replay run: it opens the transport, waits for a
// receiving endpoint, then streams Reader -> Pacer -> Codec -> Transport in
// strict source order until end-of-log or cancellation. Errors never escape
// Run; it always returns a terminal Status.
//
// A Controller is single-use. Multiple concurrent replays are supported by
// creating one Controller per run, each with its own Transport.
type Controller struct {
	cfg   Config
	src   vdrlog.Source
	enc   codec.Encoder
	tr    transport.Transport
	clock timeutil.Clock
	total int

	mu    sync.Mutex
	state State
	stats Stats
}

// NewController validates cfg and assembles a run. A nil clock uses the
// real one. If src exposes a Total method (the CSV reader does) it seeds
// progress reporting.
func NewController(cfg Config, src vdrlog.Source, enc codec.Encoder, tr transport.Transport, clock timeutil.Clock) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replay config: %w", err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	total := 0
	if t, ok := src.(interface{ Total() int }); ok {
		total = t.Total()
	}

	return &Controller{
		cfg:   cfg,
		src:   src,
		enc:   enc,
		tr:    tr,
		clock: clock,
		total: total,
		state: StateIdle,
		stats: Stats{RunID: uuid.New().String()},
	}, nil
}

// State returns the current lifecycle state. Safe to call from a
// status-reporting goroutine while the run is in progress.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the run statistics.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.clone()
}

// Run executes the replay. It blocks until the log is exhausted, a
// non-recoverable error occurs, or ctx is cancelled, and always releases
// the transport before returning.
func (c *Controller) Run(ctx context.Context) Status {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Status{Outcome: OutcomeFailed, Err: fmt.Errorf("controller already ran (state %s)", c.state)}
	}
	c.stats.StartedAt = c.clock.Now()
	c.mu.Unlock()

	if err := c.tr.Open(); err != nil {
		return c.finish(Status{Outcome: OutcomeFailed, Err: err})
	}
	defer c.tr.Close()

	return c.finish(c.stream(ctx))
}

func (c *Controller) stream(ctx context.Context) Status {
	c.setState(StateAwaitingPeer)
	if err := c.tr.AwaitReady(ctx); err != nil {
		return c.interrupted(err)
	}
	c.setState(StateStreaming)

	pacer := NewPacer(c.clock, c.cfg.SpeedFactor)
	for pass := 0; pass < c.cfg.Passes; pass++ {
		if pass > 0 {
			if err := c.src.Rewind(); err != nil {
				return Status{Outcome: OutcomeFailed, Err: fmt.Errorf("failed to rewind log: %w", err)}
			}
			pacer.Reset()
		}
		if c.cfg.Passes > 1 {
			monitoring.Logf("playing pass %d/%d", pass+1, c.cfg.Passes)
		}

		if st, done := c.streamPass(ctx, pacer); done {
			return st
		}

		c.mu.Lock()
		c.stats.Passes++
		c.mu.Unlock()
	}

	c.setState(StateCompleted)
	return Status{Outcome: OutcomeCompleted}
}

// streamPass plays the source once. done is true when the run must stop
// with the returned status.
func (c *Controller) streamPass(ctx context.Context, pacer *Pacer) (Status, bool) {
	processed := 0
	lastReport := time.Time{}

	for {
		rec, err := c.src.Next()
		if err == io.EOF {
			c.reportProgress(processed)
			return Status{}, false
		}
		if err != nil {
			return Status{Outcome: OutcomeFailed, Err: fmt.Errorf("log read failed: %w", err)}, true
		}

		if err := pacer.Wait(ctx, rec.Timestamp); err != nil {
			return c.interrupted(err), true
		}

		wire, err := c.enc.Encode(rec.Payload)
		if err != nil {
			// Should not happen after config validation; skip the record.
			monitoring.Logf("failed to encode record %d: %v", rec.Seq, err)
			c.addSendFailure()
			continue
		}

		if st, done := c.send(ctx, pacer, wire); done {
			return st, true
		}

		processed++
		if c.clock.Since(lastReport) > progressInterval {
			c.reportProgress(processed)
			lastReport = c.clock.Now()
		}
	}
}

// send writes one message, applying the per-transport failure policy: a
// lost TCP peer pauses the run to await reconnection (unless the policy
// says abort), while UDP and serial write errors are counted and skipped.
func (c *Controller) send(ctx context.Context, pacer *Pacer, wire []byte) (Status, bool) {
	err := c.tr.Send(wire)
	if err == nil {
		c.recordSent(pacer)
		return Status{}, false
	}

	if !errors.Is(err, transport.ErrConnectionLost) {
		c.addSendFailure()
		monitoring.Logf("send failed, continuing: %v", err)
		return Status{}, false
	}

	if c.cfg.AbortOnDisconnect {
		return Status{Outcome: OutcomeFailed, Err: err}, true
	}

	monitoring.Logf("peer disconnected, awaiting a new connection")
	c.setState(StateAwaitingPeer)
	if err := c.tr.AwaitReady(ctx); err != nil {
		return c.interrupted(err), true
	}
	c.setState(StateStreaming)

	// Resume the schedule from now rather than bursting through whatever
	// backlog accumulated while no peer was connected.
	pacer.Reanchor()

	if err := c.tr.Send(wire); err != nil {
		return Status{Outcome: OutcomeFailed, Err: fmt.Errorf("send after reconnect failed: %w", err)}, true
	}
	c.recordSent(pacer)
	return Status{}, false
}

func (c *Controller) recordSent(pacer *Pacer) {
	late := pacer.Lateness()
	c.mu.Lock()
	c.stats.RecordsSent++
	if len(c.stats.SchedErrors) < maxSchedSamples {
		c.stats.SchedErrors = append(c.stats.SchedErrors, late)
	}
	c.mu.Unlock()
}

func (c *Controller) addSendFailure() {
	c.mu.Lock()
	c.stats.SendFailures++
	c.mu.Unlock()
}

func (c *Controller) reportProgress(processed int) {
	if c.total > 0 {
		monitoring.Logf("processed %d/%d", processed, c.total)
	} else {
		monitoring.Logf("processed %d", processed)
	}
}

// interrupted maps a suspension-point error to a terminal status: context
// cancellation becomes Cancelled, anything else Failed.
func (c *Controller) interrupted(err error) Status {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Status{Outcome: OutcomeCancelled, Err: err}
	}
	return Status{Outcome: OutcomeFailed, Err: err}
}

// finish records the terminal state and timestamps, then returns st.
func (c *Controller) finish(st Status) Status {
	switch st.Outcome {
	case OutcomeCompleted:
		c.setState(StateCompleted)
	default:
		c.setState(StateFailed)
	}

	c.mu.Lock()
	c.stats.FinishedAt = c.clock.Now()
	c.mu.Unlock()
	return st
}

// setState applies a transition; terminal states are absorbing.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.terminal() {
		return
	}
	c.state = s
}
