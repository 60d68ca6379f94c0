// Package engine runs a [ruleset.Ruleset] asynchronously through an
// [Interpreter], one run at a time.
//
// A run moves through the statuses
//
//	Idle -> Running -> {Stopping -> Cancelled, Completed, Failed}
//
// and is observed through a single typed event stream (see [Engine.Subscribe]).
// Every message the interpreter emits becomes a [LogEntry]. Entries are
// appended in emission order, tallied into the run's [Result] as they arrive,
// and broadcast to subscribers. When the worker exits, the result is finalized
// exactly once and delivered in an [EventComplete].
//
// [ruleset.Ruleset]: github.com/macropower/orgz/pkg/ruleset.Ruleset
package engine
