package replay

import "time"

// maxSchedSamples bounds the retained scheduling-error samples so very long
// logs do not grow the stats block without limit.
const maxSchedSamples = 100000

// Stats describes one replay run. Snapshots are safe to read while the run
// is in progress via Controller.Stats.
type Stats struct {
	RunID string

	// RecordsSent counts messages successfully written to the transport,
	// across all passes.
	RecordsSent int
	// SendFailures counts non-fatal send errors (UDP/serial write errors,
	// skipped encodes).
	SendFailures int
	// Passes counts completed playback passes.
	Passes int

	StartedAt  time.Time
	FinishedAt time.Time

	// SchedErrors holds the per-message scheduling error (actual emission
	// instant minus target), capped at maxSchedSamples entries.
	SchedErrors []time.Duration
}

// clone returns a deep copy.
func (s Stats) clone() Stats {
	out := s
	out.SchedErrors = make([]time.Duration, len(s.SchedErrors))
	copy(out.SchedErrors, s.SchedErrors)
	return out
}
