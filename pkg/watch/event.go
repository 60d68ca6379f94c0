package watch

import "fmt"

// EventType classifies a [FileEvent].
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
	EventMoved
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventMoved:
		return "moved"
	}

	return "unknown"
}

// Event is delivered to subscribers of a [Service].
type Event any

// FileEvent is a classified filesystem change.
type FileEvent struct {
	Path string
	// DestPath is the new path of a moved entry.
	DestPath string
	Type     EventType
	IsDir    bool
}

func (e FileEvent) String() string {
	if e.Type == EventMoved {
		return fmt.Sprintf("%s: %s -> %s", e.Type, e.Path, e.DestPath)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Path)
}

// ErrorEvent reports a failure while watching or delivering. The service
// keeps running.
type ErrorEvent struct {
	Err  error
	Path string
}

func (e ErrorEvent) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ErrorEvent) Unwrap() error {
	return e.Err
}
