package organize

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/macropower/orgz/pkg/execs"
	"github.com/macropower/orgz/pkg/expr"
	"github.com/macropower/orgz/pkg/ruleset"
)

const day = 24 * time.Hour

var sizeCondRe = regexp.MustCompile(`^(>=|<=|==|!=|>|<|=)?\s*(.+)$`)

// candidate is a filesystem entry a rule may act on.
type candidate struct {
	info fs.FileInfo
	path string
	root string
}

func (c *candidate) isDir() bool {
	return c.info != nil && c.info.IsDir()
}

func (c *candidate) base() string {
	return filepath.Base(c.path)
}

// stem is the base name without its extension. Directories keep their full name.
func (c *candidate) stem() string {
	base := c.base()
	if c.isDir() {
		return base
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ext is the lowercase extension without its leading dot.
func (c *candidate) ext() string {
	if c.isDir() {
		return ""
	}

	return strings.ToLower(strings.TrimPrefix(filepath.Ext(c.base()), "."))
}

type filter struct {
	match  func(c *candidate) (bool, error)
	name   string
	negate bool
}

func (in *Interpreter) compileFilters(specs []ruleset.Spec) ([]filter, error) {
	filters := make([]filter, 0, len(specs))

	for i, s := range specs {
		f, err := in.compileFilter(s)
		if err != nil {
			return nil, fmt.Errorf("filters[%d] %s: %w", i, s.Name(), err)
		}

		filters = append(filters, f)
	}

	return filters, nil
}

func (in *Interpreter) compileFilter(s ruleset.Spec) (filter, error) {
	f := filter{name: s.Name(), negate: s.Negated()}

	var err error

	switch f.name {
	case "name":
		f.match, err = nameFilter(s)
	case "extension":
		f.match, err = extensionFilter(s)
	case "regex":
		f.match, err = regexFilter(s)
	case "size":
		f.match, err = sizeFilter(s)
	case "lastmodified":
		f.match, err = in.lastModifiedFilter(s)
	case "empty":
		f.match = emptyFilter
	case "expr":
		f.match, err = in.exprFilter(s)
	default:
		return f, fmt.Errorf("%w: %q", ErrUnknownFilter, f.name)
	}

	return f, err
}

// matchFilters combines filter results according to mode. A rule without
// filters matches every candidate.
func matchFilters(filters []filter, mode ruleset.FilterMode, c *candidate) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	for _, f := range filters {
		ok, err := f.match(c)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", f.name, err)
		}
		if f.negate {
			ok = !ok
		}

		switch mode {
		case ruleset.FilterModeAny:
			if ok {
				return true, nil
			}
		case ruleset.FilterModeNone:
			if ok {
				return false, nil
			}
		default:
			if !ok {
				return false, nil
			}
		}
	}

	return mode != ruleset.FilterModeAny, nil
}

func nameFilter(s ruleset.Spec) (func(*candidate) (bool, error), error) {
	caseSensitive, err := boolParam(s, "case_sensitive", true)
	if err != nil {
		return nil, err
	}

	fold := func(v string) string {
		if caseSensitive {
			return v
		}

		return strings.ToLower(v)
	}
	foldAll := func(vs []string) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = fold(v)
		}

		return out
	}

	glob, err := stringParam(s, "match", true)
	if err != nil {
		return nil, err
	}

	glob = fold(glob)

	if glob != "" {
		_, err = filepath.Match(glob, "")
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %w", ErrInvalidParam, glob, err)
		}
	}

	conds := map[string][]string{}
	for _, key := range []string{"startswith", "endswith", "contains"} {
		vals, err := stringsParam(s, key, false)
		if err != nil {
			return nil, err
		}

		conds[key] = foldAll(vals)
	}

	return func(c *candidate) (bool, error) {
		stem := fold(c.stem())

		if glob != "" {
			ok, err := filepath.Match(glob, stem)
			if err != nil || !ok {
				return false, err
			}
		}

		checks := map[string]func(string, string) bool{
			"startswith": strings.HasPrefix,
			"endswith":   strings.HasSuffix,
			"contains":   strings.Contains,
		}
		for key, check := range checks {
			vals := conds[key]
			if len(vals) == 0 {
				continue
			}

			if !slices.ContainsFunc(vals, func(v string) bool { return check(stem, v) }) {
				return false, nil
			}
		}

		return true, nil
	}, nil
}

func extensionFilter(s ruleset.Spec) (func(*candidate) (bool, error), error) {
	exts, err := stringsParam(s, "extensions", true)
	if err != nil {
		return nil, err
	}

	for i, e := range exts {
		exts[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
	}

	return func(c *candidate) (bool, error) {
		if c.isDir() {
			return false, nil
		}
		if len(exts) == 0 {
			return c.ext() != "", nil
		}

		return slices.Contains(exts, c.ext()), nil
	}, nil
}

func regexFilter(s ruleset.Spec) (func(*candidate) (bool, error), error) {
	pattern, err := stringParam(s, "pattern", true)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, fmt.Errorf("%w: pattern is required", ErrInvalidParam)
	}

	re := execs.NewLazyRegexp(pattern)

	_, err = re.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}

	return func(c *candidate) (bool, error) {
		return re.MatchString(c.base())
	}, nil
}

type sizeCond struct {
	op    string
	bytes uint64
}

func (sc sizeCond) holds(n uint64) bool {
	switch sc.op {
	case ">":
		return n > sc.bytes
	case ">=":
		return n >= sc.bytes
	case "<":
		return n < sc.bytes
	case "<=":
		return n <= sc.bytes
	case "!=":
		return n != sc.bytes
	default:
		return n == sc.bytes
	}
}

// parseSizeConditions parses comma-separated conditions such as "> 1 MB".
// A condition without an operator is an equality check.
func parseSizeConditions(text string) ([]sizeCond, error) {
	var conds []sizeCond

	for part := range strings.SplitSeq(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		m := sizeCondRe.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("%w: size condition %q", ErrInvalidParam, part)
		}

		n, err := humanize.ParseBytes(strings.TrimSpace(m[2]))
		if err != nil {
			return nil, fmt.Errorf("%w: size condition %q: %w", ErrInvalidParam, part, err)
		}

		conds = append(conds, sizeCond{op: m[1], bytes: n})
	}

	if len(conds) == 0 {
		return nil, fmt.Errorf("%w: size condition is required", ErrInvalidParam)
	}

	return conds, nil
}

func sizeFilter(s ruleset.Spec) (func(*candidate) (bool, error), error) {
	text, err := stringParam(s, "condition", true)
	if err != nil {
		return nil, err
	}

	conds, err := parseSizeConditions(text)
	if err != nil {
		return nil, err
	}

	return func(c *candidate) (bool, error) {
		n, err := entrySize(c)
		if err != nil {
			return false, err
		}

		for _, sc := range conds {
			if !sc.holds(n) {
				return false, nil
			}
		}

		return true, nil
	}, nil
}

func (in *Interpreter) lastModifiedFilter(s ruleset.Spec) (func(*candidate) (bool, error), error) {
	units := map[string]time.Duration{
		"days":   day,
		"hours":  time.Hour,
		"weeks":  7 * day,
		"months": 30 * day,
		"years":  365 * day,
	}

	var threshold time.Duration

	for key, unit := range units {
		n, err := intParam(s, key, key == "days")
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidParam, key)
		}

		threshold += time.Duration(n) * unit
	}

	mode, err := stringParam(s, "mode", false)
	if err != nil {
		return nil, err
	}

	switch mode {
	case "", "older", "newer":
	default:
		return nil, fmt.Errorf("%w: mode must be older or newer, got %q", ErrInvalidParam, mode)
	}

	return func(c *candidate) (bool, error) {
		if threshold == 0 {
			return true, nil
		}

		age := in.now().Sub(c.info.ModTime())
		if mode == "newer" {
			return age <= threshold, nil
		}

		return age > threshold, nil
	}, nil
}

func emptyFilter(c *candidate) (bool, error) {
	if !c.isDir() {
		return c.info.Size() == 0, nil
	}

	entries, err := os.ReadDir(c.path)
	if err != nil {
		return false, fmt.Errorf("read dir: %w", err)
	}

	return len(entries) == 0, nil
}

func (in *Interpreter) exprFilter(s ruleset.Spec) (func(*candidate) (bool, error), error) {
	expression, err := stringParam(s, "expression", true)
	if err != nil {
		return nil, err
	}
	if expression == "" {
		return nil, fmt.Errorf("%w: expression is required", ErrInvalidParam)
	}

	env, err := in.exprEnvironment()
	if err != nil {
		return nil, err
	}

	program, err := env.CompileBool(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}

	return func(c *candidate) (bool, error) {
		size, err := entrySize(c)
		if err != nil {
			return false, err
		}

		return expr.EvalBool(program, map[string]any{
			"path":     c.path,
			"name":     c.base(),
			"stem":     c.stem(),
			"ext":      c.ext(),
			"dir":      filepath.Dir(c.path),
			"size":     int64(size), //nolint:gosec // Sizes fit in int64.
			"isDir":    c.isDir(),
			"modified": c.info.ModTime(),
			"now":      in.now(),
		})
	}, nil
}

// entrySize is the file size, or the total size of the files below a directory.
func entrySize(c *candidate) (uint64, error) {
	if !c.isDir() {
		return uint64(max(c.info.Size(), 0)), nil
	}

	var total uint64

	err := filepath.WalkDir(c.path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		total += uint64(max(info.Size(), 0))

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure %s: %w", c.path, err)
	}

	return total, nil
}
