package cli_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/internal/cli"
	"github.com/macropower/orgz/pkg/ruleset"
	"github.com/macropower/orgz/pkg/store"
)

const demoRuleset = `rules:
  - name: Alpha
    locations: [in]
    filters:
      - extension: txt
    actions:
      - echo: 'found {path.name}'
  - name: Beta
    tags: [slow]
    locations: [in]
    actions:
      - echo: beta
`

type env struct {
	configPath string
	rulesDir   string
	workDir    string
}

func newEnv(t *testing.T) env {
	t.Helper()

	dir := t.TempDir()
	e := env{
		configPath: filepath.Join(dir, "config.yaml"),
		rulesDir:   filepath.Join(dir, configs.DefaultRulesetsDir),
		workDir:    filepath.Join(dir, "work"),
	}

	require.NoError(t, os.WriteFile(e.configPath, configs.Default(), 0o600))
	require.NoError(t, os.MkdirAll(e.rulesDir, 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(e.workDir, "in"), 0o750))

	return e
}

func (e env) writeRuleset(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(e.rulesDir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (e env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}

	cmd := cli.NewRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--log-level", "error"}, args...))

	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

func readRuleset(t *testing.T, path string) *ruleset.Ruleset {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	rs, err := ruleset.Parse(string(data))
	require.NoError(t, err)

	return rs
}

func TestNewCommand(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.execute(t, "new", "demo")
	require.NoError(t, err)

	path := filepath.Join(e.rulesDir, "demo.yaml")
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ruleset.Example(), string(data))

	_, err = e.execute(t, "new", "demo")
	require.ErrorIs(t, err, store.ErrExists)

	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o600))

	_, err = e.execute(t, "new", "demo", "--force")
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ruleset.Example(), string(data))
}

func TestNewCommandPath(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	path := filepath.Join(e.workDir, "custom.yaml")

	_, err := e.execute(t, "new", path)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestCheckCommand(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		content string
		want    string
		wantErr error
	}{
		"valid": {
			content: demoRuleset,
			want:    "ok, 2 rules (2 enabled)",
		},
		"empty rules": {
			content: "rules: []\n",
			want:    "ok, 0 rules (0 enabled)",
		},
		"schema error": {
			content: "rules:\n  - name: x\n    bogus: true\n",
			wantErr: ruleset.ErrSchema,
		},
		"parse error": {
			content: "rules: [\n",
			wantErr: ruleset.ErrParse,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			e.writeRuleset(t, "demo", tc.content)

			out, err := e.execute(t, "check", "demo")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Contains(t, out, tc.want)
		})
	}
}

func TestCheckCommandMissing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.execute(t, "check", "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "orgz new nope")
}

func TestListCommand(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No rulesets")

	e.writeRuleset(t, "config", demoRuleset)
	e.writeRuleset(t, "broken", "rules: [\n")

	out, err = e.execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* config")
	assert.Contains(t, out, "2 rules")
	assert.Contains(t, out, "invalid")

	out, err = e.execute(t, "list", "--paths")
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(e.rulesDir, "broken.yaml")+"\n"+filepath.Join(e.rulesDir, "config.yaml")+"\n",
		out,
	)
}

func TestUseCommand(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeRuleset(t, "demo", demoRuleset)

	_, err := e.execute(t, "use", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	out, err := e.execute(t, "use", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `"demo"`)

	data, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default: demo")
	assert.Contains(t, string(data), "# How long a rename waits")

	// Commands without a ruleset argument now use it.
	out, err = e.execute(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(e.rulesDir, "demo.yaml"))
}

func TestRulesCommands(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	path := e.writeRuleset(t, "demo", demoRuleset)

	out, err := e.execute(t, "rules", "list", "-r", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "#slow")

	_, err = e.execute(t, "rules", "disable", "-r", "demo", "beta")
	require.NoError(t, err)

	rs := readRuleset(t, path)
	require.Len(t, rs.Rules, 2)
	assert.True(t, rs.Rules[0].IsEnabled())
	assert.False(t, rs.Rules[1].IsEnabled())

	_, err = e.execute(t, "rules", "move", "-r", "demo", "Beta", "1")
	require.NoError(t, err)
	assert.Equal(t, "Beta", readRuleset(t, path).Rules[0].Name)

	_, err = e.execute(t, "rules", "duplicate", "-r", "demo", "2")
	require.NoError(t, err)

	rs = readRuleset(t, path)
	require.Len(t, rs.Rules, 3)
	assert.Equal(t, "Alpha"+store.CopySuffix, rs.Rules[2].Name)

	_, err = e.execute(t, "rules", "delete", "-r", "demo", "3", "--backup")
	require.NoError(t, err)
	assert.Len(t, readRuleset(t, path).Rules, 2)

	backups, err := filepath.Glob(filepath.Join(e.rulesDir, "demo_backup_*.yaml"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	_, err = e.execute(t, "rules", "add", "-r", "demo",
		"--name", "PDFs",
		"-l", "in",
		"-f", "extension: [pdf]",
		"-a", "move: out/",
		"-t", "docs",
		"--position", "1",
	)
	require.NoError(t, err)

	rs = readRuleset(t, path)
	require.Len(t, rs.Rules, 3)

	added := rs.Rules[0]
	assert.Equal(t, "PDFs", added.Name)
	assert.Equal(t, []string{"docs"}, added.Tags)
	require.Len(t, added.Filters, 1)
	assert.Equal(t, "extension", added.Filters[0].Name())
	require.Len(t, added.Actions, 1)
	assert.Equal(t, "move", added.Actions[0].Name())

	out, err = e.execute(t, "rules", "show", "-r", "demo", "PDFs")
	require.NoError(t, err)
	assert.Contains(t, out, "name: PDFs")
}

func TestRulesCommandErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		wantErr error
		want    string
		args    []string
	}{
		"unknown name suggests": {
			args:    []string{"rules", "show", "-r", "demo", "Alpah"},
			wantErr: cli.ErrRuleNotFound,
			want:    `did you mean "Alpha"`,
		},
		"position out of range": {
			args:    []string{"rules", "delete", "-r", "demo", "9"},
			wantErr: cli.ErrRuleNotFound,
		},
		"move target out of range": {
			args:    []string{"rules", "move", "-r", "demo", "1", "5"},
			wantErr: store.ErrIndexOutOfRange,
		},
		"invalid action yaml": {
			args: []string{"rules", "add", "-r", "demo", "-a", "move: [a, b"},
			want: "--action",
		},
		"invalid targets": {
			args: []string{"rules", "add", "-r", "demo", "--targets", "links"},
			want: "targets",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			path := e.writeRuleset(t, "demo", demoRuleset)

			_, err := e.execute(t, tc.args...)
			require.Error(t, err)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
			if tc.want != "" {
				assert.Contains(t, err.Error(), tc.want)
			}

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, demoRuleset, string(data))
		})
	}
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeRuleset(t, "demo", demoRuleset)
	require.NoError(t, os.WriteFile(filepath.Join(e.workDir, "in", "a.txt"), []byte("a"), 0o600))

	export := filepath.Join(e.workDir, "run.json")

	out, err := e.execute(t, "run", "demo",
		"--working-dir", e.workDir,
		"--skip-tags", "slow",
		"--export", export,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "[Alpha]")
	assert.Contains(t, out, "found a.txt")
	assert.Contains(t, out, "Rule excluded by tags")
	assert.NotContains(t, out, "(simulate) beta")
	assert.Contains(t, out, "Simulation completed")

	data, err := os.ReadFile(export)
	require.NoError(t, err)
	assert.Contains(t, string(data), "found a.txt")
}

func TestRunCommandReal(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeRuleset(t, "demo", `rules:
  - name: Archive
    locations: [in]
    actions:
      - move: {dest: 'out/'}
`)
	require.NoError(t, os.WriteFile(filepath.Join(e.workDir, "in", "a.txt"), []byte("a"), 0o600))

	out, err := e.execute(t, "run", "demo", "--working-dir", e.workDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation completed")
	assert.FileExists(t, filepath.Join(e.workDir, "in", "a.txt"))

	out, err = e.execute(t, "run", "demo", "--working-dir", e.workDir, "--real", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Run completed")
	assert.NoFileExists(t, filepath.Join(e.workDir, "in", "a.txt"))
	assert.FileExists(t, filepath.Join(e.workDir, "out", "a.txt"))
}

func TestRunCommandFailed(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeRuleset(t, "demo", "rules:\n  - actions: [explode]\n")

	out, err := e.execute(t, "run", "demo", "--working-dir", e.workDir)
	require.ErrorIs(t, err, cli.ErrRunFailed)
	assert.Contains(t, out, "explode")
}

func TestRunCommandFlagErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args []string
		want string
	}{
		"min level": {
			args: []string{"run", "demo", "--min-level", "loud"},
			want: "--min-level",
		},
		"export format": {
			args: []string{"run", "demo", "--export-format", "xml"},
			want: "--export-format",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			e.writeRuleset(t, "demo", demoRuleset)

			_, err := e.execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestShowConfig(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.execute(t, "--show-config")
	require.NoError(t, err)
	assert.Contains(t, out, "kind: Configuration")
	assert.Contains(t, out, "pairWindow: 50ms")
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.configPath, []byte("apiVersion: nope\nkind: Configuration\n"), 0o600))

	_, err := e.execute(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
