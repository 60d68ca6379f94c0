package execs

import (
	"fmt"
	"regexp"
	"sync"
)

// LazyRegexp compiles a regular expression on first use, at most once, and
// is safe for concurrent use. Regex filters are parsed once per run but may
// never see a candidate, so compilation is deferred.
type LazyRegexp struct {
	err     error
	regex   *regexp.Regexp
	pattern string
	once    sync.Once
}

// NewLazyRegexp creates a new [LazyRegexp] for pattern.
func NewLazyRegexp(pattern string) *LazyRegexp {
	return &LazyRegexp{pattern: pattern}
}

// Get returns the compiled expression. An empty pattern yields a nil
// expression and no error.
func (lr *LazyRegexp) Get() (*regexp.Regexp, error) {
	lr.once.Do(func() {
		if lr.pattern == "" {
			return
		}

		lr.regex, lr.err = regexp.Compile(lr.pattern)
		if lr.err != nil {
			lr.err = fmt.Errorf("compile pattern %q: %w", lr.pattern, lr.err)
		}
	})

	return lr.regex, lr.err
}

// MatchString reports whether s contains a match. An empty pattern matches
// everything.
func (lr *LazyRegexp) MatchString(s string) (bool, error) {
	re, err := lr.Get()
	if err != nil {
		return false, err
	}
	if re == nil {
		return true, nil
	}

	return re.MatchString(s), nil
}

// Pattern returns the uncompiled pattern.
func (lr *LazyRegexp) Pattern() string {
	return lr.pattern
}
