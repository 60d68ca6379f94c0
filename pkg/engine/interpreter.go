package engine

import (
	"context"

	"github.com/macropower/orgz/pkg/ruleset"
)

// Interpreter applies a ruleset's filters and actions to the filesystem.
//
// Execute must emit one [Message] per log-worthy event through sink, attach
// whatever rule, path and action context it has, and check ctx between
// discrete units of work (per rule, and per file within a rule).
type Interpreter interface {
	Execute(ctx context.Context, rs *ruleset.Ruleset, opts Options, sink Sink) error
}

// InterpreterFunc adapts a function to the [Interpreter] interface.
type InterpreterFunc func(ctx context.Context, rs *ruleset.Ruleset, opts Options, sink Sink) error

// Execute calls f.
func (f InterpreterFunc) Execute(ctx context.Context, rs *ruleset.Ruleset, opts Options, sink Sink) error {
	return f(ctx, rs, opts, sink)
}

// Sink receives messages from an [Interpreter]. It is safe for concurrent use.
type Sink interface {
	Emit(msg Message)
}

// Message is what an [Interpreter] reports. Empty context fields are unknown.
type Message struct {
	Level  Level
	Text   string
	Rule   string
	Path   string
	Action string
	// Skipped marks the message as reporting a skipped item, which counts
	// toward [Result.SkippedCount].
	Skipped bool
}

// Options are passed through to the [Interpreter] for a run.
type Options struct {
	// WorkingDir resolves relative locations. Empty means the process's
	// working directory.
	WorkingDir string
	// ConfigPath is the ruleset file the run came from, if any.
	ConfigPath string
	// Tags selects rules sharing at least one tag, when non-empty.
	Tags []string
	// SkipTags excludes rules sharing any tag.
	SkipTags []string
	// Simulate evaluates everything without touching the filesystem.
	Simulate bool
}
