package execs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/orgz/pkg/log"
)

// ErrCommandExecution is returned when a command fails to start or exits
// with a non-zero status.
var ErrCommandExecution = errors.New("run command")

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs commands with a fixed [Environment].
type Executor struct {
	tracer trace.Tracer
	env    *Environment
}

// NewExecutor creates an [Executor]. A nil env runs commands with no
// variables at all.
func NewExecutor(env *Environment) *Executor {
	if env == nil {
		env = &Environment{}
	}

	return &Executor{
		tracer: otel.Tracer("execs"),
		env:    env,
	}
}

// Run runs cmd in dir with stdin, if any, as its standard input.
//
// The [Result] is returned whenever the command started, including when it
// exits non-zero, so callers can show what it printed.
func (e *Executor) Run(ctx context.Context, cmd Command, dir string, stdin []byte) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "run command", trace.WithAttributes(
		attribute.String("command", cmd.String()),
		attribute.String("dir", dir),
	))
	defer span.End()

	if cmd.Name == "" {
		return nil, ErrEmptyCommand
	}

	logger := log.WithContext(ctx).With(slog.String("command", cmd.String()))

	//nolint:gosec // G204: Commands come from the user's ruleset.
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = dir
	c.Env = e.env.List()
	c.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer

	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command failed")
		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", res.Duration),
			slog.Int("exit_code", res.ExitCode),
			slog.Any("err", err),
		)

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The process never started.
			return nil, fmt.Errorf("%w: %w", ErrCommandExecution, err)
		}

		return res, fmt.Errorf("%w: %w", ErrCommandExecution, err)
	}

	logger.DebugContext(ctx, "command finished", slog.Duration("duration", res.Duration))

	return res, nil
}
