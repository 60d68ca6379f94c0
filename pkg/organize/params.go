package organize

import (
	"fmt"
	"math"
	"strconv"

	"github.com/macropower/orgz/pkg/ruleset"
)

// param returns the named parameter, falling back to the positional
// argument when primary is set and no parameters were given.
func param(s ruleset.Spec, key string, primary bool) (any, bool) {
	if v, ok := s.Param(key); ok {
		return v, true
	}
	if primary && len(s.Params) == 0 && s.Arg != nil {
		return s.Arg, true
	}

	return nil, false
}

func stringParam(s ruleset.Spec, key string, primary bool) (string, error) {
	v, ok := param(s, key, primary)
	if !ok || v == nil {
		return "", nil
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(t), nil
	}

	return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParam, key, v)
}

func stringsParam(s ruleset.Spec, key string, primary bool) ([]string, error) {
	v, ok := param(s, key, primary)
	if !ok || v == nil {
		return nil, nil
	}

	items, isList := v.([]any)
	if !isList {
		items = []any{v}
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case int, int64, uint64, float64:
			out = append(out, fmt.Sprint(t))
		default:
			return nil, fmt.Errorf("%w: %s must contain strings, got %T", ErrInvalidParam, key, item)
		}
	}

	return out, nil
}

func boolParam(s ruleset.Spec, key string, def bool) (bool, error) {
	v, ok := s.Param(key)
	if !ok || v == nil {
		return def, nil
	}

	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrInvalidParam, key, err)
		}

		return b, nil
	}

	return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidParam, key, v)
}

func intParam(s ruleset.Spec, key string, primary bool) (int64, error) {
	v, ok := param(s, key, primary)
	if !ok || v == nil {
		return 0, nil
	}

	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidParam, key, err)
	}

	return n, nil
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", t)
		}

		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not a whole number", t)
		}

		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", t, err)
		}

		return n, nil
	}

	return 0, fmt.Errorf("expected a number, got %T", v)
}
