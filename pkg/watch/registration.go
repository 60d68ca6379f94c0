package watch

import (
	"fmt"
	"path/filepath"
	"slices"
)

// Registration describes a watched directory.
type Registration struct {
	// Path is the directory. [Service.Add] stores it absolute, with symlinks
	// resolved.
	Path string
	// Include patterns select base names to report. Empty means all.
	Include []string
	// Exclude patterns drop base names even if included.
	Exclude []string
	// Recursive watches every subdirectory, including ones created later.
	Recursive bool
	// IgnoreDirs drops events for directories.
	IgnoreDirs bool
}

// Match reports whether a base name passes the include and exclude patterns.
func (r Registration) Match(name string) bool {
	if len(r.Include) > 0 && !matchAny(r.Include, name) {
		return false
	}

	return !matchAny(r.Exclude, name)
}

// Accepts reports whether e passes the registration's filters. A moved event
// passes when either its source or destination name matches.
func (r Registration) Accepts(e FileEvent) bool {
	if e.IsDir && r.IgnoreDirs {
		return false
	}
	if r.Match(filepath.Base(e.Path)) {
		return true
	}

	return e.Type == EventMoved && e.DestPath != "" && r.Match(filepath.Base(e.DestPath))
}

func (r Registration) validate() error {
	for _, p := range slices.Concat(r.Include, r.Exclude) {
		_, err := filepath.Match(p, "")
		if err != nil {
			return fmt.Errorf("pattern %q: %w", p, err)
		}
	}

	return nil
}

func (r Registration) clone() Registration {
	r.Include = slices.Clone(r.Include)
	r.Exclude = slices.Clone(r.Exclude)

	return r
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}

	return false
}
