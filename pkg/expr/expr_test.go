package expr_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/cel-go/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/pkg/expr"
)

func fileVars(path string) map[string]any {
	return map[string]any{
		"path":     path,
		"name":     filepath.Base(path),
		"stem":     "report",
		"ext":      "pdf",
		"dir":      filepath.Dir(path),
		"size":     int64(2_500_000),
		"isDir":    false,
		"modified": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"now":      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFileExpressions(t *testing.T) {
	t.Parallel()

	env, err := expr.NewFileEnvironment()
	require.NoError(t, err)

	tcs := map[string]struct {
		expression string
		want       bool
	}{
		"pathBase in list": {
			expression: `pathBase(path) in ["report.pdf", "invoice.pdf"]`,
			want:       true,
		},
		"pathExt": {
			expression: `pathExt(path) == ".pdf"`,
			want:       true,
		},
		"pathDir suffix": {
			expression: `pathDir(path).endsWith("/Downloads")`,
			want:       true,
		},
		"pathStem": {
			expression: `pathStem(path) == "report"`,
			want:       true,
		},
		"size threshold": {
			expression: `size > bytes("2 MB")`,
			want:       true,
		},
		"size threshold iec": {
			expression: `size > bytes("3 MiB")`,
			want:       false,
		},
		"humanBytes": {
			expression: `humanBytes(size) == "2.5 MB"`,
			want:       true,
		},
		"age": {
			expression: `now - modified > duration("720h")`,
			want:       true,
		},
		"age function": {
			expression: `age(modified, now) > duration("1200h")`,
			want:       true,
		},
		"age function upper bound": {
			expression: `age(modified, now) < duration("1000h")`,
			want:       false,
		},
		"glob": {
			expression: `glob(name, "rep*.pdf")`,
			want:       true,
		},
		"glob miss": {
			expression: `glob(name, "IMG_*")`,
			want:       false,
		},
		"combined": {
			expression: `ext == "pdf" && !isDir && name.startsWith("rep")`,
			want:       true,
		},
		"no match": {
			expression: `name.matches("^IMG_.*")`,
			want:       false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			program, err := env.Compile(tc.expression)
			require.NoError(t, err)

			got, err := expr.EvalBool(program, fileVars("/home/user/Downloads/report.pdf"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalBoolErrors(t *testing.T) {
	t.Parallel()

	env, err := expr.NewFileEnvironment()
	require.NoError(t, err)

	tcs := map[string]struct {
		expression string
		wantErr    error
	}{
		"not a bool": {
			expression: `name`,
			wantErr:    expr.ErrNotBool,
		},
		"invalid size": {
			expression: `size > bytes("lots")`,
		},
		"negative size": {
			expression: `humanBytes(-1) == ""`,
		},
		"bad glob": {
			expression: `glob(name, "[")`,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			program, err := env.Compile(tc.expression)
			require.NoError(t, err)

			_, err = expr.EvalBool(program, fileVars("/tmp/report.pdf"))
			require.Error(t, err)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	env, err := expr.NewFileEnvironment()
	require.NoError(t, err)

	tcs := map[string]string{
		"syntax":           `name ==`,
		"undeclared":       `files.exists(f, f == name)`,
		"pathBase int":     `pathBase(42)`,
		"pathDir bool":     `pathDir(true)`,
		"pathExt list":     `pathExt([])`,
		"yamlPath int arg": `yamlPath(123, "$.test")`,
		"bytes int":        `bytes(5) > 0`,
	}

	for name, expression := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := env.Compile(expression)
			require.Error(t, err)
		})
	}
}

func TestYamlPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	invoice := filepath.Join(dir, "invoice.yaml")
	require.NoError(t, os.WriteFile(invoice, []byte(`kind: Invoice
customer:
  name: ACME
total: 120
lines:
  - sku: a
  - sku: b
`), 0o600))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("invalid: yaml: content: ["), 0o600))

	env, err := expr.NewFileEnvironment()
	require.NoError(t, err)

	tcs := map[string]struct {
		path       string
		expression string
		want       bool
	}{
		"string value": {
			path:       invoice,
			expression: `yamlPath(path, "$.kind") == "Invoice"`,
			want:       true,
		},
		"nested value": {
			path:       invoice,
			expression: `yamlPath(path, "$.customer.name") == "ACME"`,
			want:       true,
		},
		"numeric value": {
			path:       invoice,
			expression: `yamlPath(path, "$.total") > 100`,
			want:       true,
		},
		"list value": {
			path:       invoice,
			expression: `size(yamlPath(path, "$.lines")) == 2`,
			want:       true,
		},
		"missing key is null": {
			path:       invoice,
			expression: `yamlPath(path, "$.missing") == null`,
			want:       true,
		},
		"invalid path is null": {
			path:       invoice,
			expression: `yamlPath(path, "invalid[path") == null`,
			want:       true,
		},
		"invalid yaml is null": {
			path:       broken,
			expression: `yamlPath(path, "$.invalid") == null`,
			want:       true,
		},
		"missing file is null": {
			path:       filepath.Join(dir, "missing.yaml"),
			expression: `yamlPath(path, "$.kind") == null`,
			want:       true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			program, err := env.Compile(tc.expression)
			require.NoError(t, err)

			got, err := expr.EvalBool(program, fileVars(tc.path))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileBool(t *testing.T) {
	t.Parallel()

	env, err := expr.NewFileEnvironment()
	require.NoError(t, err)

	tcs := map[string]struct {
		expression string
		wantErr    error
	}{
		"bool":     {expression: `isDir`},
		"dyn":      {expression: `yamlPath(path, "$.enabled")`},
		"string":   {expression: `name`, wantErr: expr.ErrNotBool},
		"int":      {expression: `size + 1`, wantErr: expr.ErrNotBool},
		"duration": {expression: `age(modified, now)`, wantErr: expr.ErrNotBool},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := env.CompileBool(tc.expression)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestCompileCaches(t *testing.T) {
	t.Parallel()

	env, err := expr.NewFileEnvironment()
	require.NoError(t, err)

	first, err := env.Compile(`ext == "pdf"`)
	require.NoError(t, err)

	second, err := env.CompileBool(`ext == "pdf"`)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := env.Compile(`ext == "png"`)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestMustNewEnvironment(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()
	_, err := env.Compile(`pathStem("/a/b.tar.gz") == "b.tar"`)
	require.NoError(t, err)
}

func TestNativeValue(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input    any
		expected any
		isNull   bool
	}{
		"nil":             {input: nil, isNull: true},
		"bool":            {input: true, expected: true},
		"int":             {input: 42, expected: int64(42)},
		"int8":            {input: int8(-4), expected: int64(-4)},
		"uint32":          {input: uint32(42), expected: int64(42)},
		"uint64 overflow": {input: uint64(math.MaxUint64), expected: float64(math.MaxUint64)},
		"float32":         {input: float32(1.5), expected: 1.5},
		"string":          {input: "hello", expected: "hello"},
		"unsupported":     {input: complex(1, 2), isNull: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			result := expr.NativeValue(tc.input)
			if tc.isNull {
				assert.Equal(t, types.NullValue, result)

				return
			}

			switch want := tc.expected.(type) {
			case float64:
				got, ok := result.Value().(float64)
				require.True(t, ok)
				assert.InDelta(t, want, got, 0.01)
			default:
				assert.Equal(t, want, result.Value())
			}
		})
	}
}

func TestNativeValueCollections(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input any
		want  string
	}{
		"slice":            {input: []any{1, "a", nil}, want: "list"},
		"map any any":      {input: map[any]any{"k": "v", 1: 2}, want: "map"},
		"map string any":   {input: map[string]any{"nested": map[string]any{"a": 1}}, want: "map"},
		"empty slice":      {input: []any{}, want: "list"},
		"empty string map": {input: map[string]any{}, want: "map"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			result := expr.NativeValue(tc.input)
			assert.Equal(t, tc.want, result.Type().TypeName())
		})
	}
}
