package engine

import "github.com/google/uuid"

// Event is delivered to subscribers of an [Engine].
type Event any

type (
	// EventStatus is sent on every status transition, in transition order.
	EventStatus struct {
		Status Status
		RunID  uuid.UUID
	}

	// EventLog carries a [LogEntry] as soon as it is appended.
	EventLog struct {
		Entry LogEntry
		RunID uuid.UUID
	}

	// EventComplete carries the finalized [Result]. It is sent exactly once
	// per run, after the terminal [EventStatus].
	EventComplete struct {
		Result Result
	}
)
