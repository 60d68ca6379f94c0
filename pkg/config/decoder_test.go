package config_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/pkg/config"
)

const header = `apiVersion: orgz.jacobcolvin.com/v1beta1
kind: Configuration
`

func TestDecoder_Decode(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		check func(t *testing.T, cfg *configs.Config)
		input string
		err   string
	}{
		"header only gets defaults": {
			input: header,
			check: func(t *testing.T, cfg *configs.Config) {
				t.Helper()

				require.NotNil(t, cfg.Run)
				require.NotNil(t, cfg.Watch)
				assert.True(t, *cfg.Run.Simulate)
				assert.Equal(t, "50ms", cfg.Watch.PairWindow)
			},
		},
		"explicit values": {
			input: header + `run:
  simulate: false
  tags: [daily]
watch:
  pairWindow: 100ms
`,
			check: func(t *testing.T, cfg *configs.Config) {
				t.Helper()

				assert.False(t, *cfg.Run.Simulate)
				assert.Equal(t, []string{"daily"}, cfg.Run.Tags)
				assert.Equal(t, "100ms", cfg.Watch.PairWindow)
			},
		},
		"syntax error": {
			input: header + `run:
  tags: [unclosed
`,
			err: "sequence end token ']' not found",
		},
		"missing header": {
			input: `run:
  simulate: true
`,
			err: "missing properties",
		},
		"unknown property": {
			input: header + `rulesets:
  folder: rules
`,
			err: "folder",
		},
		"wrong type": {
			input: header + `run:
  simulate: "yes"
`,
			err: "simulate",
		},
	}

	dec := config.NewDecoder(configs.New, configs.DefaultValidator)

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := dec.Decode([]byte(tc.input))
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
				assert.Nil(t, cfg)

				return
			}

			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestDecoder_WithoutSchema(t *testing.T) {
	t.Parallel()

	input := []byte(`run:
  simulate: false
`)

	_, err := config.NewDecoder(configs.New, configs.DefaultValidator).Decode(input)
	require.Error(t, err)

	cfg, err := config.NewDecoder(configs.New, configs.DefaultValidator, config.WithoutSchema()).Decode(input)
	require.NoError(t, err)
	assert.False(t, *cfg.Run.Simulate)
}

type rejectAll struct{}

func (rejectAll) Validate(any) error {
	return assert.AnError
}

func TestDecoder_WithSchema(t *testing.T) {
	t.Parallel()

	dec := config.NewDecoder(configs.New, configs.DefaultValidator, config.WithSchema(rejectAll{}))

	_, err := dec.Decode([]byte(header))
	require.ErrorIs(t, err, assert.AnError)
}

func TestDecoder_ErrorExcerpt(t *testing.T) {
	t.Parallel()

	input := []byte(header + `run:
  simulate: [
`)

	for _, style := range []string{"", "onedark"} {
		dec := config.NewDecoder(configs.New, configs.DefaultValidator,
			config.WithHighlightStyle(style),
			config.WithContextLines(1),
		)

		_, err := dec.Decode(input)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sequence end token")
	}
}

func TestDecoder_DecodeFile(t *testing.T) {
	t.Parallel()

	dec := config.NewDecoder(configs.New, configs.DefaultValidator)

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := dec.DecodeFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()

		_, err := dec.DecodeFile(t.TempDir())
		require.Error(t, err)
		require.NotErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("invalid file names path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(header+"bogus: 1\n"), 0o600))

		_, err := dec.DecodeFile(path)
		require.ErrorContains(t, err, path)
	})

	t.Run("default file round trips", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, configs.WriteDefault(path, false))

		cfg, err := dec.DecodeFile(path)
		require.NoError(t, err)

		out, err := cfg.MarshalYAML()
		require.NoError(t, err)

		again, err := dec.Decode(out)
		require.NoError(t, err)
		assert.Equal(t, cfg.Rulesets.Dir, again.Rulesets.Dir)
		assert.Equal(t, cfg.Watch.PairWindow, again.Watch.PairWindow)
		assert.Len(t, again.Shell.EnvFrom, len(cfg.Shell.EnvFrom))
	})
}
