package merge

// State is a step of one merge attempt.
type State int

const (
	StateOpened State = iota
	StateServerRunning
	StateClientRunning
	StateBothDone
	StateServerCommitted
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateServerRunning:
		return "server-running"
	case StateClientRunning:
		return "client-running"
	case StateBothDone:
		return "both-done"
	case StateServerCommitted:
		return "server-committed"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RejectReason says why a merge was not accepted.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	// ReasonConflict: a statement or commit hit a serialization failure,
	// lock failure or constraint violation.
	ReasonConflict
	// ReasonTimeout: a stream did not finish in time, usually because it
	// waited for a lock held by the other stream.
	ReasonTimeout
	ReasonServerCommitFailed
	ReasonClientCommitFailed
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonConflict:
		return "conflict"
	case ReasonTimeout:
		return "timeout"
	case ReasonServerCommitFailed:
		return "server-commit-failed"
	case ReasonClientCommitFailed:
		return "client-commit-failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a merge attempt that reached a decision.
type Result struct {
	Accepted bool
	Reason   RejectReason
	State    State
	Trace    []State
	// Err is the database error behind a rejection.
	Err error
}
