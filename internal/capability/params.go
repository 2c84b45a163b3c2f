package capability

import (
	"encoding/json"
	"strconv"
)

// Param helpers shared by the capability implementations.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		// Interpolated values arrive as strings.
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return defaultVal
		}
		return parsed
	default:
		return defaultVal
	}
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return defaultVal
		}
		return i
	default:
		return defaultVal
	}
}

// lookup reads a key from params first, then the projected context.
func lookup(input Input, key string) (any, bool) {
	if v, ok := input.Params[key]; ok {
		return v, true
	}
	if v, ok := input.Context[key]; ok {
		return v, true
	}
	return nil, false
}

// lookupString reads a string from params first, then the projected context.
func lookupString(input Input, key string) string {
	if v, ok := lookup(input, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
