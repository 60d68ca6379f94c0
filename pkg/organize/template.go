package organize

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// vars are the values placeholders expand to.
type vars struct {
	now     time.Time
	modTime time.Time
	path    string
	root    string
	counter int
}

func (v vars) lookup(key string) (string, bool) {
	base := filepath.Base(v.path)
	ext := filepath.Ext(base)

	switch key {
	case "path":
		return v.path, true
	case "path.name":
		return base, true
	case "path.stem", "name":
		return strings.TrimSuffix(base, ext), true
	case "path.suffix", "extension":
		return ext, true
	case "path.parent":
		return filepath.Dir(v.path), true
	case "relative_path":
		if v.root == "" {
			return base, true
		}

		rel, err := filepath.Rel(v.root, v.path)
		if err != nil {
			return base, true
		}

		return rel, true
	case "counter":
		if v.counter == 0 {
			return "", false
		}

		return strconv.Itoa(v.counter), true
	case "now":
		return v.now.Format(dateLayout), true
	case "lastmodified":
		if v.modTime.IsZero() {
			return "", false
		}

		return v.modTime.Format(dateLayout), true
	}

	if name, ok := strings.CutPrefix(key, "env."); ok {
		return os.LookupEnv(name)
	}

	return "", false
}

// expand replaces known placeholders in tmpl. Unknown placeholders are kept.
func expand(tmpl string, v vars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		if s, ok := v.lookup(m[1 : len(m)-1]); ok {
			return s
		}

		return m
	})
}

// resolvePath expands environment variables and a leading "~", and resolves
// relative paths against dir.
func resolvePath(p, dir string) string {
	p = os.ExpandEnv(p)

	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}

	return filepath.Clean(p)
}
