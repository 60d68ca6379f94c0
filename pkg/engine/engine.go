package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/orgz/pkg/log"
	"github.com/macropower/orgz/pkg/ruleset"
)

var (
	// ErrAlreadyRunning is returned when a run is requested while another is
	// active. The active run is not affected.
	ErrAlreadyRunning = errors.New("execution already in progress")
	// ErrPanic wraps a panic recovered from the interpreter.
	ErrPanic = errors.New("interpreter panic")
)

// Parser turns ruleset text into a validated [ruleset.Ruleset].
type Parser func(text string) (*ruleset.Ruleset, error)

// Engine runs rulesets through an [Interpreter], one at a time.
type Engine struct {
	tracer    trace.Tracer
	interp    Interpreter
	parse     Parser
	now       func() time.Time
	current   *run
	listeners []chan<- Event
	queue     []Event
	logs      []LogEntry
	status    Status
	mu        sync.Mutex
	// Set while a dispatcher goroutine drains the queue.
	dispatching bool
}

// run is the state of a single invocation.
type run struct {
	cancel    context.CancelFunc
	done      chan struct{}
	result    Result
	finalized bool
}

// Opt configures an [Engine].
type Opt func(*Engine)

// WithParser sets the parser used by [Engine.RunFromText].
func WithParser(p Parser) Opt {
	return func(e *Engine) {
		e.parse = p
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Opt {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an idle [Engine] that executes rulesets with interp.
func New(interp Interpreter, opts ...Opt) *Engine {
	e := &Engine{
		tracer: otel.Tracer("engine"),
		interp: interp,
		parse:  ruleset.Parse,
		now:    time.Now,
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Subscribe registers ch to receive every subsequent [Event].
//
// Events are delivered in order by a background dispatcher, so callers of
// [Engine] methods never block on subscribers. A slow subscriber delays
// delivery to the others.
func (e *Engine) Subscribe(ch chan<- Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = append(e.listeners, ch)
}

// Run starts executing rs on a new worker and returns immediately. It returns
// [ErrAlreadyRunning] without changing any state if a run is active.
//
// Cancelling ctx cancels the run, the same as [Engine.Cancel].
func (e *Engine) Run(ctx context.Context, rs *ruleset.Ruleset, opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Active() {
		return ErrAlreadyRunning
	}

	r := e.begin()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	e.setStatus(StatusRunning)

	go e.work(runCtx, r, rs.Clone(), opts)

	return nil
}

// RunFromText parses text and runs the result. When parsing fails, the run
// fails immediately: one error entry is logged, the status becomes
// [StatusFailed], the result is finalized, and the parse error is returned.
// No worker is started.
func (e *Engine) RunFromText(ctx context.Context, text string, opts Options) error {
	if e.IsRunning() {
		return ErrAlreadyRunning
	}

	rs, err := e.parse(text)
	if err == nil {
		return e.Run(ctx, rs, opts)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Active() {
		return ErrAlreadyRunning
	}

	r := e.begin()
	r.cancel = func() {}

	e.append(r, Message{
		Level: LevelError,
		Text:  fmt.Sprintf("Failed to parse rules: %v", err),
	})
	e.finalize(r, StatusFailed)

	log.WithContext(ctx).DebugContext(ctx, "rejected ruleset text",
		slog.String("run_id", r.result.RunID.String()),
		slog.Any("error", err),
	)

	return err
}

// Cancel requests cancellation of the active run and moves it to
// [StatusStopping]. The worker stops at its next check and the run ends
// [StatusCancelled]. Cancel does nothing when no run is active.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning && e.status != StatusPaused {
		return
	}

	e.current.cancel()
	e.setStatus(StatusStopping)
}

// Status returns the current status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

// IsRunning reports whether a run is active.
func (e *Engine) IsRunning() bool {
	return e.Status().Active()
}

// Result returns a copy of the current or last run's result. While a run is
// active the counters are a running tally and Logs holds the entries so far.
func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return Result{}
	}

	res := e.current.result.clone()
	if !e.current.finalized {
		res.Logs = slices.Clone(e.logs)
	}

	return res
}

// Logs returns a copy of the entries of the current or last run.
func (e *Engine) Logs() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slices.Clone(e.logs)
}

// ClearLogs discards the in-memory entries. A finalized [Result] keeps its
// own copy.
func (e *Engine) ClearLogs() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logs = nil
}

// Done returns a channel that is closed when the current run is finalized.
// With no run, the returned channel is already closed.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		done := make(chan struct{})
		close(done)

		return done
	}

	return e.current.done
}

// Wait blocks until the current run is finalized or ctx is done, and returns
// the result.
func (e *Engine) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.Done():
		return e.Result(), nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("wait for run: %w", ctx.Err())
	}
}

// begin resets logs and starts a new result. Callers hold mu.
func (e *Engine) begin() *run {
	r := &run{
		done: make(chan struct{}),
		result: Result{
			RunID:     uuid.New(),
			StartTime: e.now(),
		},
	}

	e.current = r
	e.logs = nil

	return r
}

func (e *Engine) work(ctx context.Context, r *run, rs *ruleset.Ruleset, opts Options) {
	ctx, span := e.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("run_id", r.result.RunID.String()),
		attribute.Bool("simulate", opts.Simulate),
		attribute.Int("rules", rs.Len()),
	))
	defer span.End()

	logger := log.WithContext(ctx).With(slog.String("run_id", r.result.RunID.String()))
	logger.DebugContext(ctx, "starting run",
		slog.Bool("simulate", opts.Simulate),
		slog.String("working_dir", opts.WorkingDir),
	)

	err := e.execute(ctx, rs, opts, &sink{engine: e, run: r})

	e.mu.Lock()
	defer e.mu.Unlock()

	status := StatusCompleted

	switch {
	case err != nil && !(ctx.Err() != nil && errors.Is(err, context.Canceled)):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.append(r, Message{
			Level: LevelError,
			Text:  fmt.Sprintf("Execution failed: %v", err),
		})

		status = StatusFailed

	case ctx.Err() != nil:
		status = StatusCancelled
	}

	e.finalize(r, status)

	logger.DebugContext(ctx, "finished run",
		slog.String("status", status.String()),
		slog.Int("success", r.result.SuccessCount),
		slog.Int("errors", r.result.ErrorCount),
		slog.Int("skipped", r.result.SkippedCount),
	)
}

func (e *Engine) execute(ctx context.Context, rs *ruleset.Ruleset, opts Options, s Sink) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()

	return e.interp.Execute(ctx, rs, opts, s)
}

// append records a message for r. Messages for a run that is no longer
// current, or that is already finalized, are dropped. Callers hold mu.
func (e *Engine) append(r *run, msg Message) {
	if e.current != r || r.finalized {
		return
	}

	entry := LogEntry{
		Timestamp:  e.now(),
		Level:      msg.Level,
		Message:    msg.Text,
		RuleName:   msg.Rule,
		FilePath:   msg.Path,
		ActionName: msg.Action,
	}

	e.logs = append(e.logs, entry)

	switch {
	case msg.Skipped:
		r.result.SkippedCount++
	case msg.Level == LevelError:
		r.result.ErrorCount++
	case msg.Level == LevelSuccess:
		r.result.SuccessCount++
	}

	e.enqueue(EventLog{RunID: r.result.RunID, Entry: entry})
}

// finalize ends r with status. It runs at most once per run. Callers hold mu.
func (e *Engine) finalize(r *run, status Status) {
	if r.finalized {
		return
	}

	e.setStatus(status)

	r.result.EndTime = e.now()
	r.result.Logs = slices.Clone(e.logs)
	r.finalized = true
	r.cancel()

	e.enqueue(EventComplete{Result: r.result.clone()})

	close(r.done)
}

// setStatus changes the status and queues the event. Callers hold mu.
func (e *Engine) setStatus(s Status) {
	e.status = s

	var id uuid.UUID
	if e.current != nil {
		id = e.current.result.RunID
	}

	e.enqueue(EventStatus{RunID: id, Status: s})
}

// enqueue adds evt to the delivery queue and makes sure a dispatcher is
// draining it. Callers hold mu.
func (e *Engine) enqueue(evt Event) {
	if len(e.listeners) == 0 {
		return
	}

	e.queue = append(e.queue, evt)

	if !e.dispatching {
		e.dispatching = true

		go e.dispatch()
	}
}

// dispatch delivers queued events in order until the queue is empty.
func (e *Engine) dispatch() {
	for {
		e.mu.Lock()

		if len(e.queue) == 0 {
			e.dispatching = false
			e.mu.Unlock()

			return
		}

		evt := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		listeners := slices.Clone(e.listeners)

		e.mu.Unlock()

		e.broadcast(listeners, evt)
	}
}

func (e *Engine) broadcast(listeners []chan<- Event, evt Event) {
	for _, ch := range listeners {
		deliver(ch, evt)
	}
}

func deliver(ch chan<- Event, evt Event) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("deliver engine event",
				slog.String("event", fmt.Sprintf("%T", evt)),
				slog.Any("panic", v),
			)
		}
	}()

	ch <- evt
}

// sink forwards interpreter messages to the run it belongs to.
type sink struct {
	engine *Engine
	run    *run
}

func (s *sink) Emit(msg Message) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	s.engine.append(s.run, msg)
}
