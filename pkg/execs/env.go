package execs

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Variables always passed through from the caller.
var essentialVars = []string{"PATH", "HOME", "USER", "TERM", "COLORTERM", "SHELL", "TMPDIR", "LANG"}

// CallerRef selects variables from the caller's environment, by exact
// name, by regular expression, or both.
type CallerRef struct {
	// Pattern is a regular expression matched against variable names.
	Pattern string `json:"pattern,omitempty" jsonschema:"title=Pattern,format=regex"`
	// Name is an exact variable name.
	Name string `json:"name,omitempty" jsonschema:"title=Name"`
}

// Validate reports whether Pattern compiles.
func (c *CallerRef) Validate() error {
	_, err := c.compile()

	return err
}

func (c *CallerRef) compile() (*regexp.Regexp, error) {
	if c.Pattern == "" {
		return nil, nil //nolint:nilnil // No pattern is not an error.
	}

	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", c.Pattern, err)
	}

	return re, nil
}

// EnvFromSource passes caller variables through unchanged.
type EnvFromSource struct {
	CallerRef *CallerRef `json:"callerRef,omitempty" jsonschema:"title=Caller Reference"`
}

// EnvVar sets one variable, either to Value or to the value of another
// variable already in the environment.
type EnvVar struct {
	ValueFrom *EnvVarSource `json:"valueFrom,omitempty" jsonschema:"title=Value From"`
	Name      string        `json:"name" jsonschema:"title=Name"`
	Value     string        `json:"value,omitempty" jsonschema:"title=Value"`
}

// EnvVarSource names where an [EnvVar] takes its value from.
type EnvVarSource struct {
	CallerRef *CallerRef `json:"callerRef,omitempty" jsonschema:"title=Caller Reference"`
}

// Environment is the set of variables commands run with. Only a few
// essential caller variables are kept by default.
type Environment struct {
	vars map[string]string
}

// NewEnvironment builds an [Environment] from the caller's environment in
// KEY=VALUE form. Sources in envFrom are applied first, then env, in order.
func NewEnvironment(caller []string, env []EnvVar, envFrom []EnvFromSource) (*Environment, error) {
	base := make(map[string]string, len(caller))
	for _, kv := range caller {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			base[k] = v
		}
	}

	vars := make(map[string]string)
	for _, k := range essentialVars {
		if v, ok := base[k]; ok {
			vars[k] = v
		}
	}

	for i, src := range envFrom {
		if src.CallerRef == nil {
			continue
		}

		re, err := src.CallerRef.compile()
		if err != nil {
			return nil, fmt.Errorf("envFrom[%d]: %w", i, err)
		}

		for k, v := range base {
			if k == src.CallerRef.Name || (re != nil && re.MatchString(k)) {
				vars[k] = v
			}
		}
	}

	for _, ev := range env {
		switch {
		case ev.Name == "":
		case ev.Value != "":
			vars[ev.Name] = ev.Value
		case ev.ValueFrom != nil && ev.ValueFrom.CallerRef != nil:
			// Only variables that made it into the environment can be referenced.
			if v, ok := vars[ev.ValueFrom.CallerRef.Name]; ok {
				vars[ev.Name] = v
			}
		}
	}

	return &Environment{vars: vars}, nil
}

// Lookup returns the value of a variable.
func (e *Environment) Lookup(name string) (string, bool) {
	v, ok := e.vars[name]

	return v, ok
}

// List returns the variables in KEY=VALUE form, sorted by name.
func (e *Environment) List() []string {
	out := make([]string, 0, len(e.vars))
	for _, k := range slices.Sorted(maps.Keys(e.vars)) {
		out = append(out, k+"="+e.vars[k])
	}

	return out
}
