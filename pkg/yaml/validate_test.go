package yaml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/pkg/yaml"
)

const testSchema = `{
	"type": "object",
	"required": ["rules"],
	"additionalProperties": false,
	"properties": {
		"rules": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"name": {"type": "string"},
					"enabled": {"type": "boolean"},
					"targets": {"enum": ["files", "dirs"]},
					"tags": {"type": "array", "items": {"type": "string"}},
					"actions": {
						"type": "array",
						"items": {"type": "object", "minProperties": 1, "maxProperties": 1}
					}
				}
			}
		}
	}
}`

func TestNewValidator(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		schema string
		errMsg string
	}{
		"valid":          {schema: testSchema},
		"empty":          {schema: `{}`},
		"invalid json":   {schema: `{"type": object}`, errMsg: "unmarshal schema"},
		"invalid schema": {schema: `{"type": "folder"}`, errMsg: "compile schema"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v, err := yaml.NewValidator("test.json", []byte(tc.schema))
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				assert.Nil(t, v)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestMustNewValidator(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { yaml.MustNewValidator("ok.json", []byte(testSchema)) })
	assert.Panics(t, func() { yaml.MustNewValidator("bad.json", []byte(`nope`)) })
}

func TestValidatorValidate(t *testing.T) {
	t.Parallel()

	v := yaml.MustNewValidator("ruleset.json", []byte(testSchema))

	tcs := map[string]struct {
		source   string
		wantPath string
	}{
		"valid": {
			source: "rules:\n  - name: a\n    actions:\n      - echo: hi\n",
		},
		"empty rules": {
			source: "rules: []\n",
		},
		"missing rules": {
			source:   "other: 1\n",
			wantPath: "$",
		},
		"wrong type": {
			source:   "rules:\n  - name: a\n  - name: [b]\n",
			wantPath: "$.rules[1].name",
		},
		"bad enum": {
			source:   "rules:\n  - targets: links\n",
			wantPath: "$.rules[0].targets",
		},
		"nested item": {
			source:   "rules:\n  - tags: [a, 2]\n",
			wantPath: "$.rules[0].tags[1]",
		},
		"too many keys": {
			source:   "rules:\n  - actions:\n      - {echo: a, move: b}\n",
			wantPath: "$.rules[0].actions[0]",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var data any
			require.NoError(t, yaml.Unmarshal([]byte(tc.source), &data))

			err := v.Validate(data)
			if tc.wantPath == "" {
				require.NoError(t, err)

				return
			}

			var yamlErr *yaml.Error
			require.ErrorAs(t, err, &yamlErr)
			require.NotNil(t, yamlErr.Path)
			assert.Equal(t, tc.wantPath, yamlErr.Path.String())
		})
	}
}
