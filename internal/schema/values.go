package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Helpers for loosely typed JSON maps (agent config, run results). Numbers
// may arrive as int (YAML), float64 (JSON) or json.Number.

func GetString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	str, _ := m[key].(string)
	return str
}

func GetInt(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func GetBool(m map[string]any, key string, def bool) bool {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// GetIntSlice reads a list of numbers; a missing or malformed value
// returns def.
func GetIntSlice(m map[string]any, key string, def []int) []int {
	if m == nil {
		return def
	}
	raw, ok := m[key].([]any)
	if !ok {
		if ints, ok := m[key].([]int); ok && len(ints) > 0 {
			return ints
		}
		return def
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n := GetInt(map[string]any{"v": item}, "v", -1)
		if n < 0 {
			return def
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
