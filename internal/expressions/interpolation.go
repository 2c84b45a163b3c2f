package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// Scope holds all data available for variable resolution in stage params.
type Scope struct {
	Stages map[string]any // output key -> stage value
	Inputs map[string]any // initial request fields
	Run    map[string]any // run metadata (run_id, workflow, etc.)
}

// Interpolator resolves ${{...}} references in stage params.
type Interpolator struct{}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Resolve scans raw JSON params for ${{...}} tokens, resolving each against
// the scope. Returns the interpolated JSON bytes.
func (interp *Interpolator) Resolve(ctx context.Context, raw json.RawMessage, scope *Scope) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	input := string(raw)

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		// Look for ${{ marker.
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		marker := i + idx
		start := marker + 3 // skip "${{".

		// Find the closing }}.
		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		expr := strings.TrimSpace(input[start:end])

		// Reject recursive interpolation: no nested ${{ inside the expression.
		if strings.Contains(expr, "${{") {
			return nil, schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		if expr == "" {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}

		val, err := interp.resolveExpr(expr, scope)
		if err != nil {
			return nil, err
		}

		// A JSON string holding exactly one placeholder substitutes the typed
		// value, so "${{inputs.count}}" stays a number and "${{inputs.send}}"
		// a boolean. Placeholders inside larger strings concatenate as text.
		if marker > i && input[marker-1] == '"' && end+2 < len(input) && input[end+2] == '"' {
			result.WriteString(input[i : marker-1])
			b, merr := json.Marshal(val)
			if merr != nil {
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"cannot encode resolved value for ${{%s}}", expr).WithCause(merr)
			}
			result.Write(b)
			i = end + 3 // skip `}}"`.
			continue
		}

		// Write everything before the marker, then the resolved value inline.
		result.WriteString(input[i:marker])
		result.WriteString(marshalInline(val))

		i = end + 2 // skip "}}".
	}

	return json.RawMessage(result.String()), nil
}

// resolveExpr resolves a single expression path like "stages.trends.topics".
func (interp *Interpolator) resolveExpr(expr string, scope *Scope) (any, error) {
	parts := strings.SplitN(expr, ".", 2)
	namespace := parts[0]

	switch namespace {
	case "stages":
		return interp.resolveStages(expr, scope)
	case "inputs":
		return interp.resolveNamespaced(scope.Inputs, expr, "inputs")
	case "run":
		return interp.resolveNamespaced(scope.Run, expr, "run")
	default:
		available := []string{"stages", "inputs", "run"}
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, expr, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": expr, "available_namespaces": available})
	}
}

// resolveStages resolves stages.<key>[.<field>...] references.
func (interp *Interpolator) resolveStages(expr string, scope *Scope) (any, error) {
	parts := strings.SplitN(expr, ".", 3) // [stages, key, rest...]
	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid stage reference %q: expected stages.<key>[.<field>]", expr).
			WithDetails(map[string]any{"expression": expr})
	}

	key := parts[1]

	value, ok := scope.Stages[key]
	if !ok {
		available := mapKeys(scope.Stages)
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"stage output %q not found in ${{%s}}; available: [%s]", key, expr, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": expr, "available_keys": available})
	}

	// stages.<key> — return the whole value.
	if len(parts) == 2 {
		return value, nil
	}

	return interp.traversePath(value, parts[2], expr)
}

// resolveNamespaced resolves <namespace>.<field>[.<subfield>...] references.
func (interp *Interpolator) resolveNamespaced(data map[string]any, expr, namespace string) (any, error) {
	parts := strings.SplitN(expr, ".", 2)
	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid reference %q: expected %s.<field>", expr, namespace).
			WithDetails(map[string]any{"expression": expr})
	}

	fieldPath := parts[1]

	if data == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve %q: %s scope is empty", expr, namespace).
			WithDetails(map[string]any{"expression": expr})
	}

	// Try direct key lookup first (supports keys with dots).
	if val, ok := data[fieldPath]; ok {
		return val, nil
	}

	return interp.traversePath(data, fieldPath, expr)
}

// traversePath navigates into nested maps using a dot-delimited path.
func (interp *Interpolator) traversePath(root any, path, expr string) (any, error) {
	segments := strings.Split(path, ".")
	current := root

	for i, seg := range segments {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", expr, i).
				WithDetails(map[string]any{"expression": expr})
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				availableKeys := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"field %q not found in %q; available: [%s]", seg, expr, strings.Join(availableKeys, ", ")).
					WithDetails(map[string]any{"expression": expr, "available_fields": availableKeys})
			}
			current = val
		default:
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, expr, current).
				WithDetails(map[string]any{"expression": expr})
		}
	}

	return current, nil
}

// marshalInline converts a resolved value into its inline JSON representation.
// Strings are embedded as-is so references inside larger strings concatenate
// naturally. Complex types are JSON-encoded inline.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort for small slices.
	for i := 1; i < len(keys); i++ {
		key := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > key {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = key
	}
	return keys
}

// HasInterpolation checks if a JSON blob contains any ${{...}} references.
func HasInterpolation(raw json.RawMessage) bool {
	return strings.Contains(string(raw), "${{")
}
