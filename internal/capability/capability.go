package capability

import (
	"context"
	"encoding/json"
)

// Capability is a pluggable unit of stage work within a workflow. A
// capability communicates only through its return value; it never writes to
// shared state.
type Capability interface {
	Name() string
	Spec() Spec
	Invoke(ctx context.Context, input Input) (*Output, error)
}

// Spec describes the input/output contract of a capability.
type Spec struct {
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// Input is the data provided to a capability at invocation time. Params are
// the stage's resolved parameters; Context holds the fields projected by the
// stage's declared needs keys.
type Input struct {
	Params  map[string]any `json:"params"`
	Context map[string]any `json:"context,omitempty"`
}

// Output is the single structured value a capability produces.
type Output struct {
	Value any `json:"value,omitempty"`
}

// Info is a summary of a registered capability for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
