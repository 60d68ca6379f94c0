package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/macropower/orgz/pkg/ruleset"
)

// DefaultRulesetName is the ruleset used when no name is given.
const DefaultRulesetName = "config"

// ErrExists is returned when creating a ruleset that already exists.
var ErrExists = errors.New("ruleset already exists")

var rulesetExts = []string{".yaml", ".yml"}

// Catalog locates named rulesets in a directory.
type Catalog struct {
	dir string
}

// NewCatalog creates a [Catalog] over dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns the paths of all rulesets in the directory, sorted by name.
// A missing directory yields an empty list.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list rulesets: %w", ErrIO, err)
	}

	paths := []string{}

	for _, e := range entries {
		if e.IsDir() || !slices.Contains(rulesetExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}

		paths = append(paths, filepath.Join(c.dir, e.Name()))
	}

	slices.Sort(paths)

	return paths, nil
}

// Find resolves a ruleset by name or path. An existing file path is returned
// as-is. Otherwise the name is looked up in the catalog directory, with or
// without an extension. An empty name finds [DefaultRulesetName].
func (c *Catalog) Find(name string) (string, error) {
	if name == "" {
		name = DefaultRulesetName
	}

	if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
		return name, nil
	}

	candidates := []string{filepath.Join(c.dir, name)}
	if filepath.Ext(name) == "" {
		candidates = candidates[:0]
		for _, ext := range rulesetExts {
			candidates = append(candidates, filepath.Join(c.dir, name+ext))
		}
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Path returns the path a ruleset with the given name is created at.
func (c *Catalog) Path(name string) string {
	if name == "" {
		name = DefaultRulesetName
	}
	if filepath.Ext(name) == "" {
		name += rulesetExts[0]
	}

	return filepath.Join(c.dir, name)
}

// Create writes the example ruleset under name and returns its path.
// It fails with [ErrExists] rather than overwrite.
func (c *Catalog) Create(name string) (string, error) {
	path := c.Path(name)

	err := os.MkdirAll(c.dir, 0o750)
	if err != nil {
		return "", fmt.Errorf("%w: create directories: %w", ErrIO, err)
	}

	//nolint:gosec // G304: Path is derived from the catalog directory.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: create ruleset: %w", ErrIO, err)
	}

	_, err = f.WriteString(ruleset.Example())

	closeErr := f.Close()
	if err != nil {
		return "", fmt.Errorf("%w: write ruleset: %w", ErrIO, err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("%w: close ruleset: %w", ErrIO, closeErr)
	}

	return path, nil
}
