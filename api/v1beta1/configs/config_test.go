package configs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/api/v1beta1"
	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/pkg/config"
	"github.com/macropower/orgz/pkg/execs"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := configs.New()

	assert.Equal(t, "orgz.jacobcolvin.com/v1beta1", cfg.GetAPIVersion())
	assert.Equal(t, "Configuration", cfg.GetKind())
	require.NotNil(t, cfg.Run)
	require.NotNil(t, cfg.Rulesets)
	require.NotNil(t, cfg.Watch)
	require.NotNil(t, cfg.Shell)
	assert.True(t, *cfg.Run.Simulate)
	assert.True(t, cfg.ShouldConfirm())
	assert.False(t, cfg.ShouldBackup())
	assert.Equal(t, "50ms", cfg.Watch.PairWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDuration())
	require.NoError(t, cfg.Validate())
}

func TestConfig_EnsureDefaultsKeepsValues(t *testing.T) {
	t.Parallel()

	simulate := false
	cfg := &configs.Config{
		Run:   &configs.RunConfig{Simulate: &simulate, Tags: []string{"daily"}},
		Watch: &configs.WatchConfig{PairWindow: "10ms"},
	}

	cfg.EnsureDefaults()

	assert.False(t, *cfg.Run.Simulate)
	assert.True(t, *cfg.Run.Confirm)
	assert.Equal(t, []string{"daily"}, cfg.Run.Tags)
	assert.Equal(t, "10ms", cfg.Watch.PairWindow)
	assert.Equal(t, "250ms", cfg.Watch.Debounce)
	assert.Len(t, cfg.WatchOptions(), 1)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate  func(cfg *configs.Config)
		wantErr error
	}{
		"defaults": {
			mutate: func(*configs.Config) {},
		},
		"wrong kind": {
			mutate: func(cfg *configs.Config) {
				cfg.Kind = "Ruleset"
			},
			wantErr: v1beta1.ErrUnknownKind,
		},
		"wrong api version": {
			mutate: func(cfg *configs.Config) {
				cfg.APIVersion = "v1"
			},
			wantErr: v1beta1.ErrUnknownAPIVersion,
		},
		"bad pair window": {
			mutate: func(cfg *configs.Config) {
				cfg.Watch.PairWindow = "soon"
			},
			wantErr: configs.ErrInvalidConfig,
		},
		"negative debounce": {
			mutate: func(cfg *configs.Config) {
				cfg.Watch.Debounce = "-1s"
			},
			wantErr: configs.ErrInvalidConfig,
		},
		"bad caller pattern": {
			mutate: func(cfg *configs.Config) {
				cfg.Shell.EnvFrom = []execs.EnvFromSource{
					{CallerRef: &execs.CallerRef{Pattern: "[unclosed"}},
				}
			},
			wantErr: configs.ErrInvalidConfig,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := configs.New()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestConfig_EngineOptions(t *testing.T) {
	t.Parallel()

	simulate := false
	cfg := configs.New()
	cfg.Run.Simulate = &simulate
	cfg.Run.WorkingDir = "/data"
	cfg.Run.Tags = []string{"a"}
	cfg.Run.SkipTags = []string{"b"}

	opts := cfg.EngineOptions()
	assert.False(t, opts.Simulate)
	assert.Equal(t, "/data", opts.WorkingDir)
	assert.Equal(t, []string{"a"}, opts.Tags)
	assert.Equal(t, []string{"b"}, opts.SkipTags)

	// The options do not alias the configuration.
	opts.Tags[0] = "changed"
	assert.Equal(t, "a", cfg.Run.Tags[0])

	empty := &configs.Config{}
	assert.True(t, empty.EngineOptions().Simulate)
}

func TestConfig_RulesetsDir(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		dir  string
		want string
	}{
		"default": {
			want: "/cfg/rules",
		},
		"relative": {
			dir:  "mine",
			want: "/cfg/mine",
		},
		"absolute": {
			dir:  "/srv/rules",
			want: "/srv/rules",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := configs.New()
			cfg.Rulesets.Dir = tc.dir

			assert.Equal(t, tc.want, cfg.RulesetsDir("/cfg"))
		})
	}
}

func TestConfig_Write(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		setupPath func(t *testing.T) string
		errMsg    string
		wantErr   bool
	}{
		"new file": {
			setupPath: func(t *testing.T) string {
				t.Helper()

				return filepath.Join(t.TempDir(), "config.yaml")
			},
		},
		"existing file": {
			setupPath: func(t *testing.T) string {
				t.Helper()

				path := filepath.Join(t.TempDir(), "config.yaml")
				err := os.WriteFile(path, []byte("existing"), 0o600)
				require.NoError(t, err)

				return path
			},
		},
		"creates parent directories": {
			setupPath: func(t *testing.T) string {
				t.Helper()

				return filepath.Join(t.TempDir(), "subdir", "config.yaml")
			},
		},
		"path is directory": {
			setupPath: func(t *testing.T) string {
				t.Helper()

				return t.TempDir()
			},
			wantErr: true,
			errMsg:  "path is a directory",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := configs.New()
			path := tc.setupPath(t)

			err := cfg.Write(path)

			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)

				return
			}

			require.NoError(t, err)

			_, err = os.Stat(path)
			require.NoError(t, err)
		})
	}
}

func TestWriteDefaultForce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("existing content"), 0o600))

	require.NoError(t, configs.WriteDefault(path, false))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing content", string(got))

	require.NoError(t, configs.WriteDefault(path, true))

	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(configs.Default()), string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)

	backups := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "config_backup_") {
			backups++
		}
	}

	assert.Equal(t, 1, backups)
}

//nolint:paralleltest // We need to set environment variables, so run tests sequentially.
func TestGetPath(t *testing.T) {
	tcs := map[string]struct {
		setupEnv func(t *testing.T)
		want     string
	}{
		"XDG_CONFIG_HOME is set": {
			setupEnv: func(t *testing.T) {
				t.Helper()
				t.Setenv("XDG_CONFIG_HOME", "/custom/config")
			},
			want: "/custom/config/orgz/config.yaml",
		},
		"HOME fallback": {
			setupEnv: func(t *testing.T) {
				t.Helper()
				t.Setenv("XDG_CONFIG_HOME", "")
				t.Setenv("HOME", "/test/home")
			},
			want: "/test/home/.config/orgz/config.yaml",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			tc.setupEnv(t)

			assert.Equal(t, tc.want, configs.GetPath())
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, configs.WriteDefault(path, false))

	cfg, err := config.NewDecoder(configs.New, configs.DefaultValidator).DecodeFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, *cfg.Run.Simulate)
	assert.True(t, cfg.ShouldConfirm())
	assert.Equal(t, "rules", cfg.Rulesets.Dir)
	assert.Equal(t, "50ms", cfg.Watch.PairWindow)
	require.Len(t, cfg.Shell.EnvFrom, 1)
	assert.Equal(t, "^ORGZ_", cfg.Shell.EnvFrom[0].CallerRef.Pattern)
}

func TestEmbeddedConfigMatchesSourceFile(t *testing.T) {
	t.Parallel()

	source, err := os.ReadFile("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, string(source), string(configs.Default()))
}

func TestEmbeddedSchemaMatchesSourceFile(t *testing.T) {
	t.Parallel()

	source, err := os.ReadFile("configs.v1beta1.json")
	require.NoError(t, err)
	assert.JSONEq(t, string(source), string(configs.Schema()))
}

func TestSchemaRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	tcs := map[string]string{
		"unknown section": `apiVersion: orgz.jacobcolvin.com/v1beta1
kind: Configuration
ui:
  theme: dark
`,
		"wrong type": `apiVersion: orgz.jacobcolvin.com/v1beta1
kind: Configuration
run:
  simulate: "yes"
`,
		"wrong kind": `apiVersion: orgz.jacobcolvin.com/v1beta1
kind: Policy
`,
	}

	for name, data := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.NewDecoder(configs.New, configs.DefaultValidator).Decode([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestConfig_MarshalYAML(t *testing.T) {
	t.Parallel()

	data, err := configs.New().MarshalYAML()
	require.NoError(t, err)

	yamlStr := string(data)
	assert.Contains(t, yamlStr, "apiVersion: orgz.jacobcolvin.com/v1beta1")
	assert.Contains(t, yamlStr, "kind: Configuration")
	assert.Contains(t, yamlStr, "pairWindow: 50ms")
}
