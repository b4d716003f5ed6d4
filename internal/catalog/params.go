package catalog

import (
	"fmt"
	"strconv"
	"time"
)

// Config values arrive loosely typed: YAML numbers decode as int or float64,
// environment overrides as strings.

func stringParam(params []any, i int, def string) (string, error) {
	if i >= len(params) || params[i] == nil {
		return def, nil
	}
	s, ok := params[i].(string)
	if !ok {
		return "", fmt.Errorf("param %d: want string, got %T", i, params[i])
	}
	return s, nil
}

func intParam(params []any, i int, def int) (int, error) {
	if i >= len(params) || params[i] == nil {
		return def, nil
	}
	switch v := params[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("param %d: %w", i, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("param %d: want integer, got %T", i, params[i])
}

// durationParam accepts a time.Duration, a duration string ("30s") or a
// number of seconds.
func durationParam(params []any, i int, def time.Duration) (time.Duration, error) {
	if i >= len(params) || params[i] == nil {
		return def, nil
	}
	switch v := params[i].(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("param %d: %w", i, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("param %d: want duration, got %T", i, params[i])
}

func stringsParam(params []any, from int) ([]string, error) {
	var out []string
	for i := from; i < len(params); i++ {
		s, err := stringParam(params, i, "")
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// option reads key from an options map param, if one was given.
func option(params []any, i int, key string) (any, bool) {
	if i >= len(params) {
		return nil, false
	}
	m, ok := params[i].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}
