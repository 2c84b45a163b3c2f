package schema

import "encoding/json"

// WorkflowDefinition is the JSON-serializable workflow format. Definitions
// are configuration: built once at startup, validated at build time, and
// shared read-only across concurrent executions.
type WorkflowDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Inputs      []InputField      `json:"inputs,omitempty"`
	Stages      []StageDescriptor `json:"stages"`
	Merge       []MergeRule       `json:"merge,omitempty"`
	Timeout     string            `json:"timeout,omitempty"` // workflow-level timeout (e.g. "2m")
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// InputField declares one field of the initial request schema. Required
// fields are checked by the boundary adapter before execution starts;
// declared fields (required or not) count as available context keys during
// wiring validation.
type InputField struct {
	Name        string `json:"name"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"` // applied when an optional field is absent
	Description string `json:"description,omitempty"`
}

// StageDescriptor describes a single stage in a workflow.
type StageDescriptor struct {
	Name       string          `json:"name"`
	Capability string          `json:"capability"`          // registered capability name (e.g. "trends.scout")
	Needs      []string        `json:"needs,omitempty"`     // context keys projected into the stage input
	Output     string          `json:"output"`              // context key the stage's value is stored under
	Condition  string          `json:"condition,omitempty"` // CEL guard; false skips the stage
	Params     json.RawMessage `json:"params,omitempty"`    // capability-specific parameters, interpolatable
	Timeout    string          `json:"timeout,omitempty"`   // stage-level timeout (e.g. "30s")
}

// MergeRule declares how one field of the final payload is assembled from
// the accumulated context. Exactly one of From, Expr, or Compute selects the
// source; Attach may only accompany From.
type MergeRule struct {
	Field    string            `json:"field"`
	From     string            `json:"from,omitempty"`     // copy a context key
	Attach   map[string]string `json:"attach,omitempty"`   // nested field name -> context key, nested into From's record
	Expr     string            `json:"expr,omitempty"`     // jq transform over the whole context
	Compute  string            `json:"compute,omitempty"`  // expr-lang expression over the whole context
	Required bool              `json:"required,omitempty"` // absent source marks the payload partial
}
