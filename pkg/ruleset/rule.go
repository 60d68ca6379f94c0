package ruleset

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-yaml"
)

// Targets selects which kind of filesystem entry a rule applies to.
type Targets string

// FilterMode selects how a rule's filters are combined.
type FilterMode string

const (
	TargetFiles Targets = "files"
	TargetDirs  Targets = "dirs"

	// FilterModeAll requires every filter to match.
	FilterModeAll FilterMode = "all"
	// FilterModeAny requires at least one filter to match.
	FilterModeAny FilterMode = "any"
	// FilterModeNone requires that no filter matches.
	FilterModeNone FilterMode = "none"
)

var (
	// ErrInvalidRule indicates a rule that failed validation.
	ErrInvalidRule = errors.New("invalid rule")

	// AllTargets contains every valid [Targets] value.
	AllTargets = []Targets{TargetFiles, TargetDirs}
	// AllFilterModes contains every valid [FilterMode] value.
	AllFilterModes = []FilterMode{FilterModeAll, FilterModeAny, FilterModeNone}
)

// DefaultAction is the no-op action given to rules committed without any.
func DefaultAction() Spec {
	return NewArgSpec("echo", "Hello World!")
}

// Rule is a single ordered entry in a [Ruleset].
//
//nolint:recvcheck // Value receivers for marshalling, pointer receivers for mutation.
type Rule struct {
	// Enabled defaults to true when unset.
	Enabled *bool `json:"enabled,omitempty" jsonschema:"title=Enabled,default=true"`
	// Name is an optional display name.
	Name string `json:"name,omitempty" jsonschema:"title=Name"`
	// Targets is either "files" or "dirs".
	Targets Targets `json:"targets,omitempty" jsonschema:"title=Targets,enum=files,enum=dirs,default=files"`
	// FilterMode is one of "all", "any" or "none".
	FilterMode FilterMode `json:"filter_mode,omitempty" jsonschema:"title=Filter Mode,enum=all,enum=any,enum=none,default=all"`
	// Tags select the rule for tagged runs.
	Tags []string `json:"tags,omitempty" jsonschema:"title=Tags"`
	// Locations are the directories candidates are collected from.
	Locations []Location `json:"locations,omitempty" jsonschema:"title=Locations"`
	// Filters every candidate is tested against.
	Filters []Spec `json:"filters,omitempty" jsonschema:"title=Filters"`
	// Actions applied to every matching candidate, in order.
	Actions []Spec `json:"actions,omitempty" jsonschema:"title=Actions"`
	// Subfolders recurses into subdirectories of each location.
	Subfolders bool `json:"subfolders,omitempty" jsonschema:"title=Subfolders"`
}

// NewRule creates a [Rule] with default values.
func NewRule(name string) *Rule {
	r := &Rule{Name: name}
	r.EnsureDefaults()

	return r
}

// EnsureDefaults fills unset fields with their default values.
func (r *Rule) EnsureDefaults() {
	if r.Targets == "" {
		r.Targets = TargetFiles
	}
	if r.FilterMode == "" {
		r.FilterMode = FilterModeAll
	}
	if r.Enabled == nil {
		enabled := true
		r.Enabled = &enabled
	}

	r.Tags = dedupe(r.Tags)

	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	if len(r.Locations) == 0 {
		r.Locations = nil
	}
	if len(r.Filters) == 0 {
		r.Filters = nil
	}
	if len(r.Actions) == 0 {
		r.Actions = nil
	}
}

// IsEnabled reports whether the rule should run.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// SetEnabled sets the enabled flag.
func (r *Rule) SetEnabled(enabled bool) {
	r.Enabled = &enabled
}

// DisplayName returns the name, or a positional fallback for unnamed rules.
func (r Rule) DisplayName(index int) string {
	if r.Name != "" {
		return r.Name
	}

	return fmt.Sprintf("Rule %d", index+1)
}

// Selected reports whether the rule takes part in a run filtered by tags.
// With non-empty tags the rule must carry at least one of them, and any
// shared skip tag excludes it.
func (r Rule) Selected(tags, skipTags []string) bool {
	if len(tags) > 0 && !intersects(r.Tags, tags) {
		return false
	}

	return !intersects(r.Tags, skipTags)
}

// Validate checks the rule for values the schema cannot express.
func (r Rule) Validate() error {
	if r.Targets != "" && !slices.Contains(AllTargets, r.Targets) {
		return fmt.Errorf("%w: targets must be one of %v, got %q", ErrInvalidRule, AllTargets, r.Targets)
	}
	if r.FilterMode != "" && !slices.Contains(AllFilterModes, r.FilterMode) {
		return fmt.Errorf("%w: filter_mode must be one of %v, got %q", ErrInvalidRule, AllFilterModes, r.FilterMode)
	}

	for i, loc := range r.Locations {
		if loc.Path == "" {
			return fmt.Errorf("%w: locations[%d]: empty path", ErrInvalidRule, i)
		}
	}

	for i, f := range r.Filters {
		if f.Name() == "" {
			return fmt.Errorf("%w: filters[%d]: empty kind", ErrInvalidRule, i)
		}
	}

	for i, a := range r.Actions {
		if a.Negated() {
			return fmt.Errorf("%w: actions[%d]: actions cannot be negated", ErrInvalidRule, i)
		}
		if a.Name() == "" {
			return fmt.Errorf("%w: actions[%d]: empty kind", ErrInvalidRule, i)
		}
	}

	return nil
}

// Clone returns a deep copy.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}

	c := &Rule{
		Name:       r.Name,
		Targets:    r.Targets,
		FilterMode: r.FilterMode,
		Subfolders: r.Subfolders,
	}
	if r.Enabled != nil {
		enabled := *r.Enabled
		c.Enabled = &enabled
	}
	if r.Tags != nil {
		c.Tags = append([]string{}, r.Tags...)
	}
	if r.Locations != nil {
		c.Locations = make([]Location, len(r.Locations))
		for i, l := range r.Locations {
			c.Locations[i] = l.Clone()
		}
	}
	if r.Filters != nil {
		c.Filters = cloneSpecs(r.Filters)
	}
	if r.Actions != nil {
		c.Actions = cloneSpecs(r.Actions)
	}

	return c
}

// MarshalYAML implements [github.com/goccy/go-yaml.InterfaceMarshaler].
// Keys are written in a fixed order and default values are omitted.
func (r Rule) MarshalYAML() (any, error) {
	ms := yaml.MapSlice{}

	if r.Name != "" {
		ms = append(ms, yaml.MapItem{Key: "name", Value: r.Name})
	}
	if !r.IsEnabled() {
		ms = append(ms, yaml.MapItem{Key: "enabled", Value: false})
	}
	if r.Targets != "" && r.Targets != TargetFiles {
		ms = append(ms, yaml.MapItem{Key: "targets", Value: string(r.Targets)})
	}
	if r.Subfolders {
		ms = append(ms, yaml.MapItem{Key: "subfolders", Value: true})
	}
	if r.FilterMode != "" && r.FilterMode != FilterModeAll {
		ms = append(ms, yaml.MapItem{Key: "filter_mode", Value: string(r.FilterMode)})
	}
	if len(r.Tags) > 0 {
		ms = append(ms, yaml.MapItem{Key: "tags", Value: r.Tags})
	}

	if len(r.Locations) > 0 {
		ms = append(ms, yaml.MapItem{Key: "locations", Value: r.Locations})
	}

	if len(r.Filters) > 0 {
		ms = append(ms, yaml.MapItem{Key: "filters", Value: r.Filters})
	}

	actions := r.Actions
	if actions == nil {
		actions = []Spec{}
	}

	ms = append(ms, yaml.MapItem{Key: "actions", Value: actions})

	return ms, nil
}

// UnmarshalYAML implements [github.com/goccy/go-yaml.InterfaceUnmarshaler].
func (r *Rule) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Rule

	var p plain

	err := unmarshal(&p)
	if err != nil {
		return err
	}

	*r = Rule(p)
	r.EnsureDefaults()

	return nil
}

func cloneSpecs(specs []Spec) []Spec {
	c := make([]Spec, len(specs))
	for i, s := range specs {
		c[i] = s.Clone()
	}

	return c
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}

	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))

	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
