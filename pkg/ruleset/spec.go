package ruleset

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/invopop/jsonschema"
)

// NegationPrefix negates a filter when prepended to its kind.
const NegationPrefix = "not "

// ErrInvalidSpec indicates a filter or action entry of the wrong shape.
var ErrInvalidSpec = errors.New("invalid spec")

// Spec is a single filter or action entry. It takes one of three forms:
//
//   - empty                      # Kind only.
//   - extension: [pdf, jpg]      # Kind with a positional argument.
//   - move: {dest: ~/Documents}  # Kind with named parameters.
type Spec struct {
	// Arg is the positional shorthand value, a scalar or a list.
	Arg any
	// Params holds named parameters.
	Params map[string]any
	// Kind is the filter or action name, optionally prefixed with "not ".
	Kind string
}

// NewSpec creates a [Spec] with named parameters.
func NewSpec(kind string, params map[string]any) Spec {
	return Spec{Kind: kind, Params: params}
}

// NewArgSpec creates a [Spec] with a positional argument.
func NewArgSpec(kind string, arg any) Spec {
	return Spec{Kind: kind, Arg: arg}
}

// Name returns the kind without any negation prefix.
func (s Spec) Name() string {
	return strings.TrimSpace(strings.TrimPrefix(s.Kind, NegationPrefix))
}

// Negated reports whether the kind carries the negation prefix.
func (s Spec) Negated() bool {
	return strings.HasPrefix(s.Kind, NegationPrefix)
}

// Param returns the named parameter, if set.
func (s Spec) Param(key string) (any, bool) {
	if s.Params == nil {
		return nil, false
	}

	v, ok := s.Params[key]

	return v, ok
}

// Values returns the positional argument as a list. A scalar argument is
// returned as a single-element list, and no argument returns nil.
func (s Spec) Values() []any {
	switch v := s.Arg.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Clone returns a deep copy.
func (s Spec) Clone() Spec {
	c := Spec{Kind: s.Kind, Arg: cloneValue(s.Arg)}
	if s.Params != nil {
		c.Params = cloneMap(s.Params)
	}

	return c
}

func (s Spec) String() string {
	switch {
	case len(s.Params) > 0:
		return fmt.Sprintf("%s: %v", s.Kind, s.Params)
	case s.Arg != nil:
		return fmt.Sprintf("%s: %v", s.Kind, s.Arg)
	default:
		return s.Kind
	}
}

// MarshalYAML implements [github.com/goccy/go-yaml.InterfaceMarshaler].
func (s Spec) MarshalYAML() (any, error) {
	switch {
	case len(s.Params) > 0:
		return map[string]any{s.Kind: s.Params}, nil
	case s.Arg != nil:
		return map[string]any{s.Kind: s.Arg}, nil
	default:
		return s.Kind, nil
	}
}

// UnmarshalYAML implements [github.com/goccy/go-yaml.InterfaceUnmarshaler].
func (s *Spec) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any

	err := unmarshal(&raw)
	if err != nil {
		return err
	}

	spec, err := specFromValue(raw)
	if err != nil {
		return err
	}

	*s = spec

	return nil
}

func specFromValue(raw any) (Spec, error) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return Spec{}, fmt.Errorf("%w: empty kind", ErrInvalidSpec)
		}

		return Spec{Kind: v}, nil

	case map[string]any:
		if len(v) != 1 {
			return Spec{}, fmt.Errorf("%w: expected a single key, got %d", ErrInvalidSpec, len(v))
		}

		for kind, val := range v {
			if params, ok := val.(map[string]any); ok {
				if len(params) == 0 {
					return Spec{Kind: kind}, nil
				}

				return Spec{Kind: kind, Params: params}, nil
			}

			return Spec{Kind: kind, Arg: val}, nil
		}
	}

	return Spec{}, fmt.Errorf("%w: expected a string or mapping, got %T", ErrInvalidSpec, raw)
}

// JSONSchema implements [jsonschema.JSONSchemer].
func (Spec) JSONSchema() *jsonschema.Schema {
	one := uint64(1)

	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{
				Type:      "string",
				MinLength: &one,
				Title:     "Kind",
			},
			{
				Type:          "object",
				MinProperties: &one,
				MaxProperties: &one,
				Title:         "Kind with arguments",
			},
		},
	}
}

// Location is a path a rule collects candidates from.
type Location struct {
	// Subfolders overrides the rule's recursion flag when set.
	Subfolders *bool `json:"subfolders,omitempty" jsonschema:"title=Subfolders"`
	// Path to the directory, "~" and environment variables are expanded.
	Path string `json:"path" jsonschema:"title=Path,minLength=1"`
	// Exclude lists glob patterns for directory names to skip.
	Exclude []string `json:"exclude,omitempty" jsonschema:"title=Exclude"`
}

// Recursive reports whether the location is walked recursively, given the
// rule's default.
func (l Location) Recursive(ruleDefault bool) bool {
	if l.Subfolders != nil {
		return *l.Subfolders
	}

	return ruleDefault
}

// Clone returns a deep copy.
func (l Location) Clone() Location {
	c := Location{Path: l.Path}
	if l.Subfolders != nil {
		v := *l.Subfolders
		c.Subfolders = &v
	}
	if l.Exclude != nil {
		c.Exclude = append([]string{}, l.Exclude...)
	}

	return c
}

// MarshalYAML implements [github.com/goccy/go-yaml.InterfaceMarshaler].
// A location without overrides is written as a plain path.
func (l Location) MarshalYAML() (any, error) {
	if l.Subfolders == nil && len(l.Exclude) == 0 {
		return l.Path, nil
	}

	type plain Location

	return plain(l), nil
}

// UnmarshalYAML implements [github.com/goccy/go-yaml.InterfaceUnmarshaler].
func (l *Location) UnmarshalYAML(unmarshal func(any) error) error {
	var path string

	err := unmarshal(&path)
	if err == nil {
		*l = Location{Path: path}

		return nil
	}

	type plain Location

	var p plain

	err = unmarshal(&p)
	if err != nil {
		return err
	}

	*l = Location(p)

	return nil
}

// JSONSchemaExtend implements [jsonschema.JSONSchemaExtend]. It allows the
// plain path shorthand alongside the mapping form.
func (Location) JSONSchemaExtend(jss *jsonschema.Schema) {
	one := uint64(1)

	obj := *jss
	obj.Required = []string{"path"}

	*jss = jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", MinLength: &one, Title: "Path"},
			&obj,
		},
	}
}

// Locations builds plain [Location] entries from paths.
func Locations(paths ...string) []Location {
	locs := make([]Location, 0, len(paths))
	for _, p := range paths {
		locs = append(locs, Location{Path: p})
	}

	return locs
}

func cloneMap(m map[string]any) map[string]any {
	c := maps.Clone(m)
	for k, v := range c {
		c[k] = cloneValue(v)
	}

	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		c := make([]any, len(t))
		for i, item := range t {
			c[i] = cloneValue(item)
		}

		return c
	default:
		return v
	}
}
