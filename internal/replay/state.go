package replay

// State is the controller's position in its lifecycle. Transitions are
// monotone in the sense that Completed and Failed are absorbing; Streaming
// may fall back to AwaitingPeer when the reconnect policy allows it.
type State int

const (
	// StateIdle: configuration validated, transport not yet opened.
	StateIdle State = iota
	// StateAwaitingPeer: transport open, waiting for a receiving endpoint.
	StateAwaitingPeer
	// StateStreaming: records flowing through the pipeline.
	StateStreaming
	// StateCompleted: input exhausted, transport closed. Terminal.
	StateCompleted
	// StateFailed: terminal failure (including cancellation).
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPeer:
		return "awaiting-peer"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// terminal reports whether no further transitions are allowed.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Outcome is the terminal result reported to the caller.
type Outcome int

const (
	// OutcomeCompleted: the whole log was streamed.
	OutcomeCompleted Outcome = iota
	// OutcomeFailed: a non-recoverable error stopped the run.
	OutcomeFailed
	// OutcomeCancelled: an external stop was requested.
	OutcomeCancelled
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Status is the terminal status of a replay run.
type Status struct {
	Outcome Outcome
	Err     error
}

// ExitCode maps the status to a process exit code: 0 for success, 1 for
// failure, 2 for cancellation.
func (s Status) ExitCode() int {
	switch s.Outcome {
	case OutcomeCompleted:
		return 0
	case OutcomeCancelled:
		return 2
	}
	return 1
}
