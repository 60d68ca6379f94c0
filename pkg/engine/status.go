package engine

// Status is the state of an [Engine].
type Status int

const (
	// StatusIdle is the initial status, before any run.
	StatusIdle Status = iota
	// StatusRunning means a worker is executing a ruleset.
	StatusRunning
	// StatusPaused is reserved. No transition currently produces it.
	StatusPaused
	// StatusStopping means cancellation was requested and the worker has not
	// exited yet.
	StatusStopping
	// StatusCompleted means the last run finished normally.
	StatusCompleted
	// StatusFailed means the last run could not be parsed, or the interpreter
	// returned an error or panicked.
	StatusFailed
	// StatusCancelled means the last run observed a cancellation request.
	StatusCancelled
)

var statusNames = [...]string{
	StatusIdle:      "idle",
	StatusRunning:   "running",
	StatusPaused:    "paused",
	StatusStopping:  "stopping",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusCancelled: "cancelled",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}

	return statusNames[s]
}

// Active reports whether a run is in progress. A stopping run is still
// active until its worker exits.
func (s Status) Active() bool {
	switch s {
	case StatusRunning, StatusPaused, StatusStopping:
		return true
	default:
		return false
	}
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
