package ruleset_test

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/pkg/ruleset"
	"github.com/macropower/orgz/pkg/yaml"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		check   func(t *testing.T, rs *ruleset.Ruleset)
		wantErr error
		input   string
	}{
		"single rule": {
			input: "rules:\n  - name: R1\n    actions: [{echo: hi}]",
			check: func(t *testing.T, rs *ruleset.Ruleset) {
				t.Helper()

				require.Len(t, rs.Rules, 1)

				r := rs.Rules[0]
				assert.Equal(t, "R1", r.Name)
				assert.True(t, r.IsEnabled())
				assert.Equal(t, ruleset.TargetFiles, r.Targets)
				assert.Equal(t, ruleset.FilterModeAll, r.FilterMode)
				require.Len(t, r.Actions, 1)
				assert.Equal(t, "echo", r.Actions[0].Kind)
				assert.Equal(t, "hi", r.Actions[0].Arg)
			},
		},
		"empty rule list": {
			input: "rules: []\n",
			check: func(t *testing.T, rs *ruleset.Ruleset) {
				t.Helper()

				assert.NotNil(t, rs.Rules)
				assert.Empty(t, rs.Rules)
			},
		},
		"spec shapes": {
			input: `rules:
  - locations:
      - ~/Downloads
      - path: ~/Desktop
        subfolders: true
    filters:
      - empty
      - not extension: [jpg, png]
      - size: {gt: 1 MB}
    actions:
      - delete
`,
			check: func(t *testing.T, rs *ruleset.Ruleset) {
				t.Helper()

				r := rs.Rules[0]
				require.Len(t, r.Locations, 2)
				assert.Equal(t, "~/Downloads", r.Locations[0].Path)
				assert.Nil(t, r.Locations[0].Subfolders)
				require.NotNil(t, r.Locations[1].Subfolders)
				assert.True(t, *r.Locations[1].Subfolders)

				require.Len(t, r.Filters, 3)
				assert.Equal(t, "empty", r.Filters[0].Kind)
				assert.True(t, r.Filters[1].Negated())
				assert.Equal(t, "extension", r.Filters[1].Name())
				assert.Equal(t, []any{"jpg", "png"}, r.Filters[1].Values())

				gt, ok := r.Filters[2].Param("gt")
				require.True(t, ok)
				assert.Equal(t, "1 MB", gt)
			},
		},
		"options": {
			input: `rules:
  - name: dirs
    enabled: false
    targets: dirs
    subfolders: true
    filter_mode: none
    tags: [a, b, a]
    actions: [echo]
`,
			check: func(t *testing.T, rs *ruleset.Ruleset) {
				t.Helper()

				r := rs.Rules[0]
				assert.False(t, r.IsEnabled())
				assert.Equal(t, ruleset.TargetDirs, r.Targets)
				assert.True(t, r.Subfolders)
				assert.Equal(t, ruleset.FilterModeNone, r.FilterMode)
				assert.Equal(t, []string{"a", "b"}, r.Tags)
			},
		},
		"syntax error": {
			input:   "rules:\n  - name: [unclosed\n",
			wantErr: ruleset.ErrParse,
		},
		"missing rules key": {
			input:   "other: true\n",
			wantErr: ruleset.ErrSchema,
		},
		"empty text": {
			input:   "",
			wantErr: ruleset.ErrSchema,
		},
		"rules is not a list": {
			input:   "rules: nope\n",
			wantErr: ruleset.ErrSchema,
		},
		"unknown rule key": {
			input:   "rules:\n  - nmae: typo\n",
			wantErr: ruleset.ErrSchema,
		},
		"invalid targets": {
			input:   "rules:\n  - targets: links\n",
			wantErr: ruleset.ErrSchema,
		},
		"spec with two keys": {
			input:   "rules:\n  - actions:\n      - {echo: a, move: b}\n",
			wantErr: ruleset.ErrSchema,
		},
		"negated action": {
			input:   "rules:\n  - actions:\n      - not delete\n",
			wantErr: ruleset.ErrSchema,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rs, err := ruleset.Parse(tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			tc.check(t, rs)
		})
	}
}

func TestParseErrorLocation(t *testing.T) {
	t.Parallel()

	_, err := ruleset.Parse("rules:\n  - name: ok\n    targets: links\n")
	require.ErrorIs(t, err, ruleset.ErrSchema)

	var yamlErr *yaml.Error
	require.ErrorAs(t, err, &yamlErr)
	require.NotNil(t, yamlErr.Path)
	assert.Equal(t, "$.rules[0].targets", yamlErr.Path.String())
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		rs       *ruleset.Ruleset
		want     string
		contains []string
		excludes []string
	}{
		"nil ruleset": {
			rs:   nil,
			want: "rules: []\n",
		},
		"no rules": {
			rs:   ruleset.New(),
			want: "rules: []\n",
		},
		"defaults are omitted": {
			rs: ruleset.New(&ruleset.Rule{
				Name:    "R1",
				Actions: []ruleset.Spec{ruleset.NewArgSpec("echo", "hi")},
			}),
			contains: []string{"rules:", "name: R1", "actions:", "echo: hi"},
			excludes: []string{"enabled", "targets", "filter_mode", "subfolders", "locations", "filters"},
		},
		"non-defaults are written": {
			rs: ruleset.New(func() *ruleset.Rule {
				r := ruleset.NewRule("R2")
				r.SetEnabled(false)
				r.Targets = ruleset.TargetDirs
				r.FilterMode = ruleset.FilterModeAny
				r.Subfolders = true
				r.Tags = []string{"weekly"}
				r.Locations = ruleset.Locations("~/Downloads")
				r.Filters = []ruleset.Spec{{Kind: "empty"}}
				r.Actions = []ruleset.Spec{ruleset.NewSpec("move", map[string]any{"dest": "/tmp/x"})}

				return r
			}()),
			contains: []string{
				"enabled: false", "targets: dirs", "filter_mode: any", "subfolders: true",
				"weekly", "~/Downloads", "- empty", "move:", "dest: /tmp/x",
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ruleset.Marshal(tc.rs)
			require.NoError(t, err)

			if tc.want != "" {
				assert.Equal(t, tc.want, got)
			}
			for _, s := range tc.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tc.excludes {
				assert.NotContains(t, got, s)
			}

			_, err = ruleset.Parse(got)
			require.NoError(t, err)
		})
	}
}

func TestRuleSelected(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		ruleTags []string
		tags     []string
		skipTags []string
		want     bool
	}{
		"no filters":              {ruleTags: nil, want: true},
		"untagged rule with tags": {ruleTags: nil, tags: []string{"a"}, want: false},
		"matching tag":            {ruleTags: []string{"a", "b"}, tags: []string{"b"}, want: true},
		"non-matching tag":        {ruleTags: []string{"a"}, tags: []string{"c"}, want: false},
		"skip tag":                {ruleTags: []string{"a"}, skipTags: []string{"a"}, want: false},
		"skip wins over tag":      {ruleTags: []string{"a", "b"}, tags: []string{"a"}, skipTags: []string{"b"}, want: false},
		"unrelated skip tag":      {ruleTags: []string{"a"}, skipTags: []string{"z"}, want: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := ruleset.Rule{Tags: tc.ruleTags}
			assert.Equal(t, tc.want, r.Selected(tc.tags, tc.skipTags))
		})
	}
}

func TestRuleClone(t *testing.T) {
	t.Parallel()

	orig := ruleset.NewRule("orig")
	orig.Tags = []string{"a"}
	orig.Locations = ruleset.Locations("/a")
	orig.Actions = []ruleset.Spec{ruleset.NewSpec("move", map[string]any{"dest": "/b"})}

	c := orig.Clone()
	require.Equal(t, orig, c)

	c.Name = "changed"
	c.Tags[0] = "z"
	c.Locations[0].Path = "/z"
	c.Actions[0].Params["dest"] = "/z"
	c.SetEnabled(false)

	assert.Equal(t, "orig", orig.Name)
	assert.Equal(t, "a", orig.Tags[0])
	assert.Equal(t, "/a", orig.Locations[0].Path)
	assert.Equal(t, "/b", orig.Actions[0].Params["dest"])
	assert.True(t, orig.IsEnabled())
}

func TestExampleIsValid(t *testing.T) {
	t.Parallel()

	rs, err := ruleset.Parse(ruleset.Example())
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "Example Rule", rs.Rules[0].Name)
}

func TestGenerateSchema(t *testing.T) {
	t.Parallel()

	b, err := ruleset.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(b, &schema))
	assert.Equal(t, ruleset.SchemaID, schema["$id"])

	defs, ok := schema["$defs"].(map[string]any)
	require.True(t, ok)

	for _, def := range []string{"Ruleset", "Rule", "Location", "Spec"} {
		assert.Contains(t, defs, def)
	}

	_, err = yaml.NewValidator(ruleset.SchemaID, b)
	require.NoError(t, err)
}

func genRule() gopter.Gen {
	word := func(prefix string) gopter.Gen {
		return gen.Identifier().Map(func(s string) string { return prefix + s })
	}

	return gopter.CombineGens(
		gen.OneGenOf(gen.Const(""), word("rule-")),
		gen.Bool(),
		gen.OneConstOf(ruleset.TargetFiles, ruleset.TargetDirs),
		gen.OneConstOf(ruleset.FilterModeAll, ruleset.FilterModeAny, ruleset.FilterModeNone),
		gen.SliceOfN(3, word("tag-")),
		gen.SliceOfN(2, word("/loc-")),
		gen.SliceOfN(2, word("msg-")),
		gen.Bool(),
	).Map(func(v []any) *ruleset.Rule {
		r := &ruleset.Rule{
			Name:       v[0].(string),
			Targets:    v[2].(ruleset.Targets),
			FilterMode: v[3].(ruleset.FilterMode),
			Tags:       v[4].([]string),
			Locations:  ruleset.Locations(v[5].([]string)...),
			Subfolders: v[7].(bool),
		}
		r.SetEnabled(v[1].(bool))

		for _, msg := range v[6].([]string) {
			r.Actions = append(r.Actions, ruleset.NewArgSpec("echo", msg))
		}

		r.Filters = []ruleset.Spec{{Kind: "empty"}}
		r.EnsureDefaults()

		return r
	})
}

func TestRoundTripProperty(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(nil)

	properties.Property("parse(serialize(R)) equals R", prop.ForAll(
		func(rules []*ruleset.Rule) bool {
			rs := ruleset.New(rules...)

			text, err := ruleset.Marshal(rs)
			if err != nil {
				return false
			}

			parsed, err := ruleset.Parse(text)
			if err != nil {
				return false
			}

			if len(rules) == 0 {
				return parsed.Len() == 0
			}

			return assert.ObjectsAreEqual(rs, parsed)
		},
		gen.SliceOfN(4, genRule()),
	))

	properties.TestingRun(t)
}
