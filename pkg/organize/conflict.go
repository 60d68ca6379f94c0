package organize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ConflictMode decides what happens when an action's target already exists.
type ConflictMode string

const (
	// ConflictSkip leaves both files alone.
	ConflictSkip ConflictMode = "skip"
	// ConflictOverwrite replaces the existing file.
	ConflictOverwrite ConflictMode = "overwrite"
	// ConflictRenameNew picks a free name for the incoming file.
	ConflictRenameNew ConflictMode = "rename_new"
	// ConflictRenameExisting moves the existing file to a free name first.
	ConflictRenameExisting ConflictMode = "rename_existing"

	// DefaultRenameTemplate names files when resolving a conflict by renaming.
	DefaultRenameTemplate = "{name} {counter}{extension}"

	maxCounter = 10000
)

// AllConflictModes contains every valid [ConflictMode].
var AllConflictModes = []ConflictMode{
	ConflictSkip,
	ConflictOverwrite,
	ConflictRenameNew,
	ConflictRenameExisting,
}

// ErrNoFreeName is returned when no unused name is found for a conflict.
var ErrNoFreeName = errors.New("no free name")

// placement is where an action puts an entry.
type placement struct {
	target string
	// note describes how a conflict was resolved, if there was one.
	note string
	skip bool
}

type conflictPolicy struct {
	mode     ConflictMode
	template string
}

func parseConflictPolicy(mode, template string, def ConflictMode) (conflictPolicy, error) {
	p := conflictPolicy{mode: ConflictMode(mode), template: template}
	if p.mode == "" {
		p.mode = def
	}
	if p.template == "" {
		p.template = DefaultRenameTemplate
	}
	if !slices.Contains(AllConflictModes, p.mode) {
		return p, fmt.Errorf("%w: on_conflict must be one of %v, got %q", ErrInvalidParam, AllConflictModes, mode)
	}

	return p, nil
}

// place resolves the target for moving or copying src to dst. In simulate
// mode the filesystem is left untouched.
func (p conflictPolicy) place(src, dst string, simulate bool) (placement, error) {
	if !exists(dst) {
		return placement{target: dst}, nil
	}
	if samePath(src, dst) {
		return placement{target: dst, skip: true, note: "already at destination"}, nil
	}

	switch p.mode {
	case ConflictSkip:
		return placement{target: dst, skip: true, note: "destination exists"}, nil

	case ConflictOverwrite:
		if !simulate {
			err := os.RemoveAll(dst)
			if err != nil {
				return placement{}, fmt.Errorf("remove existing %s: %w", dst, err)
			}
		}

		return placement{target: dst, note: "overwrote existing"}, nil

	case ConflictRenameExisting:
		free, err := p.freeName(dst)
		if err != nil {
			return placement{}, err
		}
		if !simulate {
			err = os.Rename(dst, free)
			if err != nil {
				return placement{}, fmt.Errorf("rename existing %s: %w", dst, err)
			}
		}

		return placement{target: dst, note: "renamed existing to " + filepath.Base(free)}, nil

	default:
		free, err := p.freeName(dst)
		if err != nil {
			return placement{}, err
		}

		return placement{target: free, note: "renamed to " + filepath.Base(free)}, nil
	}
}

// freeName finds the first unused sibling of path produced by the template,
// counting up from 2.
func (p conflictPolicy) freeName(path string) (string, error) {
	dir := filepath.Dir(path)

	for counter := 2; counter < maxCounter; counter++ {
		name := expand(p.template, vars{path: path, counter: counter})

		candidate := filepath.Join(dir, name)
		if !exists(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w for %s", ErrNoFreeName, path)
}

func exists(path string) bool {
	_, err := os.Lstat(path)

	return err == nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}

	ai, err := os.Stat(a)
	if err != nil {
		return false
	}

	bi, err := os.Stat(b)
	if err != nil {
		return false
	}

	return os.SameFile(ai, bi)
}
