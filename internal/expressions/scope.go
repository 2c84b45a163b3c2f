package expressions

import (
	"encoding/json"
	"sync"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// ScopeBuilder accumulates the run context as stages complete. It enforces:
//   - Stage values are immutable after completion (frozen on insert).
//   - Append-only: each output key is written exactly once.
//   - Inputs and run metadata are immutable after init.
type ScopeBuilder struct {
	mu     sync.RWMutex
	stages map[string]any // output key -> frozen value
	inputs map[string]any // initial request fields (immutable after init)
	run    map[string]any // run metadata (immutable after init)
}

// NewScopeBuilder creates a ScopeBuilder initialized with run-level data.
// inputs and run are deep-copied to prevent external mutation.
func NewScopeBuilder(inputs, run map[string]any) *ScopeBuilder {
	return &ScopeBuilder{
		stages: make(map[string]any),
		inputs: deepCopyMap(inputs),
		run:    deepCopyMap(run),
	}
}

// AddStageValue registers a completed stage's value under its output key. The
// value is frozen (deep-copied) at the time of insertion. Subsequent calls
// with the same key are rejected.
func (sb *ScopeBuilder) AddStageValue(key string, value any) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if _, exists := sb.stages[key]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateOutputKey,
			"output key %q already written; stage values are immutable after completion", key)
	}

	sb.stages[key] = deepCopyAny(value)
	return nil
}

// Has reports whether a value has been written under the given output key.
func (sb *ScopeBuilder) Has(key string) bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	_, ok := sb.stages[key]
	return ok
}

// Build creates a Scope snapshot. The returned scope is safe for concurrent
// use (stage values are copied).
func (sb *ScopeBuilder) Build() *Scope {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	return &Scope{
		Stages: deepCopyMap(sb.stages),
		Inputs: sb.inputs, // frozen at init
		Run:    sb.run,    // frozen at init
	}
}

// EvalData returns the scope shaped as the evaluation environment shared by
// the CEL, jq, and expr engines.
func (sb *ScopeBuilder) EvalData() map[string]any {
	scope := sb.Build()
	return map[string]any{
		"stages": nonNilMap(scope.Stages),
		"inputs": nonNilMap(scope.Inputs),
		"run":    nonNilMap(scope.Run),
	}
}

// StageValues returns a read-only copy of the accumulated stage values.
func (sb *ScopeBuilder) StageValues() map[string]any {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return deepCopyMap(sb.stages)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// --- Deep copy utilities ---

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		// Primitives (string, float64, bool, nil, int, int64) are value types.
		return v
	}
}
