package organize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/execs"
	"github.com/macropower/orgz/pkg/expr"
	"github.com/macropower/orgz/pkg/log"
	"github.com/macropower/orgz/pkg/ruleset"
)

const simulatePrefix = "(simulate) "

var (
	// ErrUnknownFilter is returned for a filter kind that is not implemented.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrUnknownAction is returned for an action kind that is not implemented.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidParam is returned for a filter or action with bad parameters.
	ErrInvalidParam = errors.New("invalid parameter")
	// ErrLocation is returned for a location that is not a readable directory.
	ErrLocation = errors.New("invalid location")
)

// Interpreter applies rulesets to the filesystem. It implements
// [engine.Interpreter] and is safe for concurrent use.
type Interpreter struct {
	tracer       trace.Tracer
	now          func() time.Time
	exprEnv      *expr.Environment
	exprErr      error
	environ      []string
	shellEnv     []execs.EnvVar
	shellEnvFrom []execs.EnvFromSource
	exprOnce     sync.Once
}

// Opt configures an [Interpreter].
type Opt func(*Interpreter)

// WithClock sets the time source used by age filters and placeholders.
func WithClock(now func() time.Time) Opt {
	return func(in *Interpreter) {
		in.now = now
	}
}

// WithEnviron sets the caller environment shell actions inherit from.
// Defaults to [os.Environ].
func WithEnviron(environ []string) Opt {
	return func(in *Interpreter) {
		in.environ = environ
	}
}

// WithShellEnv adds environment variables and inheritance rules to every
// shell action.
func WithShellEnv(env []execs.EnvVar, envFrom []execs.EnvFromSource) Opt {
	return func(in *Interpreter) {
		in.shellEnv = env
		in.shellEnvFrom = envFrom
	}
}

// New creates a new [Interpreter].
func New(opts ...Opt) *Interpreter {
	in := &Interpreter{
		tracer:  otel.Tracer("organize"),
		now:     time.Now,
		environ: os.Environ(),
	}
	for _, opt := range opts {
		opt(in)
	}

	return in
}

// stats counts action outcomes for the closing summary.
type stats struct {
	success int
	errors  int
}

// Execute implements [engine.Interpreter].
func (in *Interpreter) Execute(ctx context.Context, rs *ruleset.Ruleset, opts engine.Options, sink engine.Sink) error {
	mode := "Running"
	if opts.Simulate {
		mode = "Simulating"
	}

	sink.Emit(engine.Message{Level: engine.LevelInfo, Text: mode + " organize rules..."})

	if opts.ConfigPath != "" {
		sink.Emit(engine.Message{Level: engine.LevelDebug, Text: "Config: " + opts.ConfigPath})
	}

	workDir, err := resolveWorkDir(opts.WorkingDir)
	if err != nil {
		return err
	}

	sink.Emit(engine.Message{Level: engine.LevelDebug, Text: "Working directory: " + workDir})

	var st stats

	for i, rule := range rs.Rules {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rule == nil {
			continue
		}

		name := rule.DisplayName(i)

		if !rule.IsEnabled() {
			sink.Emit(engine.Message{Level: engine.LevelInfo, Text: "Rule is disabled", Rule: name, Skipped: true})

			continue
		}
		if !rule.Selected(opts.Tags, opts.SkipTags) {
			sink.Emit(engine.Message{Level: engine.LevelInfo, Text: "Rule excluded by tags", Rule: name, Skipped: true})

			continue
		}

		err := in.runRule(ctx, rule, name, workDir, opts.Simulate, sink, &st)
		if err != nil {
			return err
		}
	}

	sink.Emit(engine.Message{
		Level: engine.LevelInfo,
		Text:  fmt.Sprintf("Completed: %d successful, %d errors", st.success, st.errors),
	})

	return nil
}

// runRule returns an error only on cancellation. Everything else is reported
// through sink.
func (in *Interpreter) runRule(
	ctx context.Context,
	rule *ruleset.Rule,
	name, workDir string,
	simulate bool,
	sink engine.Sink,
	st *stats,
) error {
	ctx, span := in.tracer.Start(ctx, "rule", trace.WithAttributes(
		attribute.String("rule", name),
		attribute.Bool("simulate", simulate),
	))
	defer span.End()

	logger := log.WithContext(ctx).With(slog.String("rule", name))

	fail := func(path, action string, err error) {
		st.errors++
		span.RecordError(err)
		sink.Emit(engine.Message{Level: engine.LevelError, Text: err.Error(), Rule: name, Path: path, Action: action})
	}

	filters, err := in.compileFilters(rule.Filters)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		fail("", "", err)

		return nil
	}

	actions, err := in.compileActions(rule.Actions)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		fail("", "", err)

		return nil
	}

	if len(rule.Locations) == 0 {
		sink.Emit(engine.Message{Level: engine.LevelWarning, Text: "Rule has no locations", Rule: name})

		return nil
	}

	matched := 0

	for _, loc := range rule.Locations {
		candidates, err := collect(ctx, loc, rule, workDir, func(path string, err error) {
			sink.Emit(engine.Message{
				Level: engine.LevelWarning,
				Text:  fmt.Sprintf("Skipped unreadable entry: %v", err),
				Rule:  name,
				Path:  path,
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			fail("", "", err)

			continue
		}

		logger.DebugContext(ctx, "collected candidates",
			slog.String("location", loc.Path),
			slog.Int("count", len(candidates)),
		)

		for _, c := range candidates {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			ok, err := matchFilters(filters, rule.FilterMode, c)
			if err != nil {
				fail(c.path, "", err)

				continue
			}
			if !ok {
				continue
			}

			matched++

			err = in.apply(ctx, actions, &job{in: in, c: c, workDir: workDir, simulate: simulate}, name, sink, st)
			if err != nil {
				return err
			}
		}
	}

	span.SetAttributes(attribute.Int("matched", matched))
	logger.DebugContext(ctx, "rule finished", slog.Int("matched", matched))

	return nil
}

// apply runs actions on one candidate, stopping at the first failure.
func (in *Interpreter) apply(
	ctx context.Context,
	actions []action,
	j *job,
	rule string,
	sink engine.Sink,
	st *stats,
) error {
	for _, a := range actions {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		path := j.c.path

		out, err := a.run(ctx, j)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			st.errors++
			sink.Emit(engine.Message{
				Level:  engine.LevelError,
				Text:   prefix(j.simulate, err.Error()),
				Rule:   rule,
				Path:   path,
				Action: a.name,
			})

			return nil
		}

		if out.level == engine.LevelSuccess {
			st.success++
		}

		sink.Emit(engine.Message{
			Level:   out.level,
			Text:    prefix(j.simulate, out.text),
			Rule:    rule,
			Path:    path,
			Action:  a.name,
			Skipped: out.skipped,
		})

		if out.output != "" {
			sink.Emit(engine.Message{Level: engine.LevelInfo, Text: out.output, Rule: rule, Path: path, Action: a.name})
		}
		if out.done {
			return nil
		}
	}

	return nil
}

func (in *Interpreter) exprEnvironment() (*expr.Environment, error) {
	in.exprOnce.Do(func() {
		in.exprEnv, in.exprErr = expr.NewFileEnvironment()
	})

	return in.exprEnv, in.exprErr
}

// collect lists the entries of a location a rule applies to, in lexical order.
// Entries below the root that cannot be read are passed to skip and left
// out; unreadable directories are not descended into.
func collect(
	ctx context.Context,
	loc ruleset.Location,
	rule *ruleset.Rule,
	workDir string,
	skip func(path string, err error),
) ([]*candidate, error) {
	root := resolvePath(loc.Path, workDir)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLocation, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrLocation, root)
	}

	recursive := loc.Recursive(rule.Subfolders)
	wantDirs := rule.Targets == ruleset.TargetDirs

	var out []*candidate

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return err
		}
		if err != nil {
			skip(path, err)

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() && excluded(d.Name(), loc.Exclude) {
			return filepath.SkipDir
		}

		if d.IsDir() == wantDirs {
			info, err := d.Info()
			if err != nil {
				skip(path, err)
			} else {
				out = append(out, &candidate{info: info, path: path, root: root})
			}
		}

		if d.IsDir() && !recursive {
			return filepath.SkipDir
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return out, nil
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		ok, err := filepath.Match(p, name)
		if err == nil && ok {
			return true
		}
	}

	return false
}

func resolveWorkDir(dir string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if dir == "" {
		return cwd, nil
	}

	return resolvePath(dir, cwd), nil
}

func prefix(simulate bool, text string) string {
	if simulate {
		return simulatePrefix + text
	}

	return text
}
