package organize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/execs"
	"github.com/macropower/orgz/pkg/ruleset"
)

const dirPerm = 0o755

// job is one candidate passing through a rule's actions.
type job struct {
	in       *Interpreter
	c        *candidate
	workDir  string
	simulate bool
}

func (j *job) vars() vars {
	v := vars{path: j.c.path, root: j.c.root, now: j.in.now()}
	if j.c.info != nil {
		v.modTime = j.c.info.ModTime()
	}

	return v
}

// destination expands dest and, when it names a directory, appends the
// candidate's base name.
func (j *job) destination(dest string) string {
	d := expand(dest, j.vars())
	trailing := strings.HasSuffix(d, "/") || strings.HasSuffix(d, string(filepath.Separator))

	d = resolvePath(d, j.workDir)

	info, err := os.Stat(d)
	if trailing || (err == nil && info.IsDir() && !samePath(d, j.c.path)) {
		return filepath.Join(d, j.c.base())
	}

	return d
}

type outcome struct {
	text   string
	output string
	level  engine.Level
	// skipped reports a conflict skip.
	skipped bool
	// done ends the action chain for the candidate.
	done bool
}

type action struct {
	run  func(ctx context.Context, j *job) (outcome, error)
	name string
}

func (in *Interpreter) compileActions(specs []ruleset.Spec) ([]action, error) {
	actions := make([]action, 0, len(specs))

	for i, s := range specs {
		a, err := in.compileAction(s)
		if err != nil {
			return nil, fmt.Errorf("actions[%d] %s: %w", i, s.Name(), err)
		}

		actions = append(actions, a)
	}

	return actions, nil
}

func (in *Interpreter) compileAction(s ruleset.Spec) (action, error) {
	a := action{name: s.Name()}

	var err error

	switch a.name {
	case "echo":
		a.run, err = echoAction(s)
	case "copy":
		a.run, err = transferAction(s, false)
	case "move":
		a.run, err = transferAction(s, true)
	case "rename":
		a.run, err = renameAction(s)
	case "delete":
		a.run = deleteAction
	case "shell":
		a.run, err = in.shellAction(s)
	default:
		return a, fmt.Errorf("%w: %q", ErrUnknownAction, a.name)
	}

	return a, err
}

func echoAction(s ruleset.Spec) (func(context.Context, *job) (outcome, error), error) {
	msg, err := stringParam(s, "msg", true)
	if err != nil {
		return nil, err
	}
	if msg == "" {
		msg = "{path}"
	}

	return func(_ context.Context, j *job) (outcome, error) {
		return outcome{level: engine.LevelInfo, text: expand(msg, j.vars())}, nil
	}, nil
}

func conflictParams(s ruleset.Spec) (conflictPolicy, error) {
	mode, err := stringParam(s, "on_conflict", false)
	if err != nil {
		return conflictPolicy{}, err
	}

	tmpl, err := stringParam(s, "rename_template", false)
	if err != nil {
		return conflictPolicy{}, err
	}

	return parseConflictPolicy(mode, tmpl, ConflictRenameNew)
}

func transferAction(s ruleset.Spec, move bool) (func(context.Context, *job) (outcome, error), error) {
	dest, err := stringParam(s, "dest", true)
	if err != nil {
		return nil, err
	}
	if dest == "" {
		return nil, fmt.Errorf("%w: dest is required", ErrInvalidParam)
	}

	policy, err := conflictParams(s)
	if err != nil {
		return nil, err
	}

	verb, past := "copy", "Copied"
	if move {
		verb, past = "move", "Moved"
	}

	return func(_ context.Context, j *job) (outcome, error) {
		pl, err := policy.place(j.c.path, j.destination(dest), j.simulate)
		if err != nil {
			return outcome{}, err
		}
		if pl.skip {
			return outcome{
				level:   engine.LevelInfo,
				text:    fmt.Sprintf("Skipped %s to %s: %s", verb, pl.target, pl.note),
				skipped: true,
			}, nil
		}

		if !j.simulate {
			err = os.MkdirAll(filepath.Dir(pl.target), dirPerm)
			if err != nil {
				return outcome{}, fmt.Errorf("create destination: %w", err)
			}

			if move {
				err = moveEntry(j.c.path, pl.target)
			} else {
				err = copyEntry(j.c.path, pl.target)
			}
			if err != nil {
				return outcome{}, err
			}
		}

		if move {
			j.c.path = pl.target
		}

		return outcome{level: engine.LevelSuccess, text: withNote(past+" to "+pl.target, pl.note)}, nil
	}, nil
}

func renameAction(s ruleset.Spec) (func(context.Context, *job) (outcome, error), error) {
	newName, err := stringParam(s, "new_name", true)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		return nil, fmt.Errorf("%w: new_name is required", ErrInvalidParam)
	}

	policy, err := conflictParams(s)
	if err != nil {
		return nil, err
	}

	return func(_ context.Context, j *job) (outcome, error) {
		name := expand(newName, j.vars())
		if name == "" || strings.ContainsAny(name, `/\`) {
			return outcome{}, fmt.Errorf("%w: new name %q must be a plain file name", ErrInvalidParam, name)
		}

		pl, err := policy.place(j.c.path, filepath.Join(filepath.Dir(j.c.path), name), j.simulate)
		if err != nil {
			return outcome{}, err
		}
		if pl.skip {
			return outcome{
				level:   engine.LevelInfo,
				text:    fmt.Sprintf("Skipped rename to %s: %s", filepath.Base(pl.target), pl.note),
				skipped: true,
			}, nil
		}

		if !j.simulate {
			err = os.Rename(j.c.path, pl.target)
			if err != nil {
				return outcome{}, fmt.Errorf("rename: %w", err)
			}
		}

		j.c.path = pl.target

		return outcome{level: engine.LevelSuccess, text: withNote("Renamed to "+filepath.Base(pl.target), pl.note)}, nil
	}, nil
}

func deleteAction(_ context.Context, j *job) (outcome, error) {
	if !j.simulate {
		err := os.RemoveAll(j.c.path)
		if err != nil {
			return outcome{}, fmt.Errorf("delete: %w", err)
		}
	}

	return outcome{level: engine.LevelSuccess, text: "Deleted " + j.c.path, done: true}, nil
}

func (in *Interpreter) shellAction(s ruleset.Spec) (func(context.Context, *job) (outcome, error), error) {
	line, err := stringParam(s, "command", true)
	if err != nil {
		return nil, err
	}

	runInSimulation, err := boolParam(s, "run_in_simulation", false)
	if err != nil {
		return nil, err
	}

	base, err := execs.ParseCommand(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}

	env, err := execs.NewEnvironment(in.environ, in.shellEnv, in.shellEnvFrom)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}

	runner := execs.NewExecutor(env)

	return func(ctx context.Context, j *job) (outcome, error) {
		v := j.vars()
		cmd := base.Expand(func(arg string) string { return expand(arg, v) })

		if j.simulate && !runInSimulation {
			return outcome{level: engine.LevelInfo, text: "Would run: " + cmd.String()}, nil
		}

		res, err := runner.Run(ctx, cmd, j.workDir, nil)
		if err != nil {
			if res != nil && strings.TrimSpace(res.Stderr) != "" {
				return outcome{}, fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))
			}

			return outcome{}, err
		}

		return outcome{
			level:  engine.LevelSuccess,
			text:   "Ran: " + cmd.String(),
			output: strings.TrimSpace(res.Stdout),
		}, nil
	}, nil
}

func withNote(text, note string) string {
	if note == "" {
		return text
	}

	return text + " (" + note + ")"
}

func moveEntry(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("move: %w", err)
	}

	err = copyEntry(src, dst)
	if err != nil {
		return err
	}

	err = os.RemoveAll(src)
	if err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}

	return nil
}

func copyEntry(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if !info.IsDir() {
		return copyFile(src, dst, info)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}

		return copyFile(path, target, info)
	})
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	return nil
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		_ = out.Close()

		return fmt.Errorf("copy contents: %w", err)
	}

	err = out.Close()
	if err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	err = os.Chtimes(dst, info.ModTime(), info.ModTime())
	if err != nil {
		return fmt.Errorf("preserve times: %w", err)
	}

	return nil
}
