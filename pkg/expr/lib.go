package expr

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// lib is the set of functions every [Environment] provides on top of the
// CEL standard library.
type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Math(),
		ext.Strings(),
		ext.Lists(),

		// pathBase(path) in ["invoice.pdf", "receipt.pdf"]
		pathFunc("pathBase", filepath.Base),
		// pathDir(path).endsWith("/Downloads")
		pathFunc("pathDir", filepath.Dir),
		// pathExt(path) in [".jpg", ".png"]
		pathFunc("pathExt", filepath.Ext),
		// pathStem(path).startsWith("IMG_")
		pathFunc("pathStem", func(p string) string {
			base := filepath.Base(p)

			return strings.TrimSuffix(base, filepath.Ext(base))
		}),

		// glob(name, "IMG_*.jpg"), with [filepath.Match] syntax.
		cel.Function("glob",
			cel.Overload("glob_string_string", []*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
				cel.BinaryBinding(func(name, pattern ref.Val) ref.Val {
					ok, err := filepath.Match(string(pattern.(types.String)), string(name.(types.String)))
					if err != nil {
						return types.NewErr("glob: %v", err)
					}

					return types.Bool(ok)
				}),
			),
		),

		// size > bytes("1.5 MB"), accepting SI and IEC units.
		cel.Function("bytes",
			cel.Overload("bytes_string", []*cel.Type{cel.StringType}, cel.IntType,
				cel.UnaryBinding(func(s ref.Val) ref.Val {
					n, err := humanize.ParseBytes(string(s.(types.String)))
					if err != nil {
						return types.NewErr("bytes: %v", err)
					}
					if n > math.MaxInt64 {
						return types.NewErr("bytes: %d is out of range", n)
					}

					return types.Int(int64(n))
				}),
			),
		),

		// humanBytes(size) == "2.0 MB"
		cel.Function("humanBytes",
			cel.Overload("human_bytes_int", []*cel.Type{cel.IntType}, cel.StringType,
				cel.UnaryBinding(func(n ref.Val) ref.Val {
					size := int64(n.(types.Int))
					if size < 0 {
						return types.NewErr("humanBytes: negative size %d", size)
					}

					return types.String(humanize.Bytes(uint64(size)))
				}),
			),
		),

		// age(modified, now) > duration("720h")
		cel.Function("age",
			cel.Overload("age_timestamp_timestamp", []*cel.Type{cel.TimestampType, cel.TimestampType}, cel.DurationType,
				cel.BinaryBinding(func(t, now ref.Val) ref.Val {
					return types.Duration{Duration: now.(types.Timestamp).Sub(t.(types.Timestamp).Time)}
				}),
			),
		),

		// ext == "yaml" && yamlPath(path, "$.kind") == "Invoice"
		// Unreadable files and missing values yield null.
		cel.Function("yamlPath",
			cel.Overload("yaml_path", []*cel.Type{cel.StringType, cel.StringType}, cel.DynType,
				cel.BinaryBinding(func(file, query ref.Val) ref.Val {
					return readYAMLPath(string(file.(types.String)), string(query.(types.String)))
				}),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return nil
}

// pathFunc declares a string-to-string function over a file path.
func pathFunc(name string, fn func(string) string) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(strings.ToLower(name)+"_string", []*cel.Type{cel.StringType}, cel.StringType,
			cel.UnaryBinding(func(p ref.Val) ref.Val {
				return types.String(fn(string(p.(types.String))))
			}),
		),
	)
}

//nolint:ireturn // CEL values are interfaces.
func readYAMLPath(file, query string) ref.Val {
	logger := slog.With(slog.String("file", file), slog.String("query", query))

	path, err := yaml.PathString(query)
	if err != nil {
		logger.Debug("invalid yaml path", slog.Any("err", err))

		return types.NullValue
	}

	content, err := os.ReadFile(file) //nolint:gosec // G304: Paths come from the scanned location.
	if err != nil {
		logger.Debug("read yaml file", slog.Any("err", err))

		return types.NullValue
	}

	var v any

	err = path.Read(bytes.NewReader(content), &v)
	if err != nil {
		logger.Debug("read yaml path", slog.Any("err", err))

		return types.NullValue
	}

	return NativeValue(v)
}

// NativeValue converts a decoded YAML value to a CEL value.
//
// All integers become CEL ints, except unsigned values beyond the int64
// range, which become doubles. Lists and maps are converted recursively.
// Anything else is null.
//
//nolint:ireturn // CEL values are interfaces.
func NativeValue(v any) ref.Val {
	switch v := v.(type) {
	case nil:
		return types.NullValue
	case string:
		return types.String(v)
	case bool:
		return types.Bool(v)
	case time.Time:
		return types.Timestamp{Time: v}
	case []any:
		items := make([]ref.Val, len(v))
		for i, item := range v {
			items[i] = NativeValue(item)
		}

		return types.NewDynamicList(types.DefaultTypeAdapter, items)
	case map[string]any:
		m := make(map[ref.Val]ref.Val, len(v))
		for k, item := range v {
			m[types.String(k)] = NativeValue(item)
		}

		return types.NewDynamicMap(types.DefaultTypeAdapter, m)
	case map[any]any:
		m := make(map[ref.Val]ref.Val, len(v))
		for k, item := range v {
			m[NativeValue(k)] = NativeValue(item)
		}

		return types.NewDynamicMap(types.DefaultTypeAdapter, m)
	}

	rv := reflect.ValueOf(v)

	switch {
	case rv.CanInt():
		return types.Int(rv.Int())
	case rv.CanUint():
		if u := rv.Uint(); u <= math.MaxInt64 {
			return types.Int(int64(u))
		}

		return types.Double(float64(rv.Uint()))
	case rv.CanFloat():
		return types.Double(rv.Float())
	}

	return types.NullValue
}
