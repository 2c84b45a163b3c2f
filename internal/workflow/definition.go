package workflow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stagelinehq/stageline/internal/expressions"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// CapabilityLookup answers whether a capability name is registered.
// Satisfied by *capability.Registry.
type CapabilityLookup interface {
	Has(name string) bool
}

// Definition is a compiled, immutable workflow. Built once at startup,
// shared read-only across concurrent executions.
type Definition struct {
	def      *schema.WorkflowDefinition
	timeout  time.Duration
	inputs   map[string]schema.InputField
	required []string
}

// Name returns the workflow name.
func (d *Definition) Name() string { return d.def.Name }

// Description returns the workflow description.
func (d *Definition) Description() string { return d.def.Description }

// Stages returns the ordered stage descriptors.
func (d *Definition) Stages() []schema.StageDescriptor { return d.def.Stages }

// MergeRules returns the payload merge rules.
func (d *Definition) MergeRules() []schema.MergeRule { return d.def.Merge }

// Inputs returns the declared input fields.
func (d *Definition) Inputs() []schema.InputField { return d.def.Inputs }

// Timeout returns the workflow-level timeout, zero when unset.
func (d *Definition) Timeout() time.Duration { return d.timeout }

// Descriptor returns the underlying definition. Callers must not mutate it.
func (d *Definition) Descriptor() *schema.WorkflowDefinition { return d.def }

// BuildRequest checks a request's input fields against the declared schema
// and returns the normalized initial context: required fields must be
// present, undeclared fields are rejected, and absent optional fields pick
// up their declared defaults.
func (d *Definition) BuildRequest(inputs map[string]any) (map[string]any, error) {
	for name := range inputs {
		if _, ok := d.inputs[name]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
				"workflow %q does not declare input %q", d.def.Name, name)
		}
	}
	for _, name := range d.required {
		v, ok := inputs[name]
		if !ok || v == nil || v == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
				"workflow %q requires input %q", d.def.Name, name)
		}
	}

	normalized := make(map[string]any, len(d.inputs))
	for k, v := range inputs {
		normalized[k] = v
	}
	for name, field := range d.inputs {
		if _, ok := normalized[name]; !ok && field.Default != nil {
			normalized[name] = field.Default
		}
	}
	return normalized, nil
}

// Builder compiles WorkflowDefinitions through the three-pass validation
// pipeline: structural (JSON Schema), semantic (capability refs, expression
// compilation), wiring (needs satisfied, output keys unique).
type Builder struct {
	structural *JSONSchemaValidator
	caps       CapabilityLookup
	conditions *expressions.CELEngine
	merges     *expressions.GoJQEngine
	computes   *expressions.ExprEngine
}

// NewBuilder creates a Builder. lookup may be nil to skip capability
// existence checks (useful for linting definitions offline).
func NewBuilder(lookup CapabilityLookup, conditions *expressions.CELEngine, merges *expressions.GoJQEngine, computes *expressions.ExprEngine) (*Builder, error) {
	structural, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Builder{
		structural: structural,
		caps:       lookup,
		conditions: conditions,
		merges:     merges,
		computes:   computes,
	}, nil
}

// Structural exposes the underlying JSON Schema validator so the executor
// can reuse its param-schema cache.
func (b *Builder) Structural() *JSONSchemaValidator { return b.structural }

// Build runs the full pipeline and returns the compiled Definition. The
// returned error preserves the taxonomy code of the first violation.
func (b *Builder) Build(def *schema.WorkflowDefinition) (*Definition, error) {
	result := b.Validate(def)
	if err := result.ToError(); err != nil {
		return nil, err
	}

	var timeout time.Duration
	if def.Timeout != "" {
		timeout, _ = time.ParseDuration(def.Timeout)
	}

	inputs := make(map[string]schema.InputField, len(def.Inputs))
	var required []string
	for _, f := range def.Inputs {
		inputs[f.Name] = f
		if f.Required {
			required = append(required, f.Name)
		}
	}

	return &Definition{
		def:      def,
		timeout:  timeout,
		inputs:   inputs,
		required: required,
	}, nil
}

// Validate runs the three passes and aggregates every issue. Structural
// errors short-circuit: the later passes assume a well-shaped definition.
func (b *Builder) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if def == nil {
		result.AddError("/", schema.ErrCodeMalformedWorkflow, "workflow definition is nil")
		return result
	}

	// Pass 1: structural (JSON Schema).
	if err := b.structural.ValidateDefinition(def); err != nil {
		appendStructural(result, err)
		return result
	}

	// Pass 2: semantic.
	result.Merge(b.validateSemantic(def))

	// Pass 3: wiring (skip if semantic errors, the stage graph may be invalid).
	if result.Valid() {
		result.Merge(b.validateWiring(def))
	}

	return result
}

// appendStructural converts a structural validation error into result issues,
// one per recorded violation.
func appendStructural(result *schema.ValidationResult, err error) {
	serr, ok := err.(*schema.Error)
	if !ok {
		result.AddError("/", schema.ErrCodeMalformedWorkflow, err.Error())
		return
	}
	if serr.Details != nil {
		if violations, ok := serr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", serr.Code, v)
			}
			return
		}
	}
	result.AddError("/", serr.Code, serr.Message)
}

// validateSemantic checks capability references, stage name uniqueness, and
// that every embedded expression compiles.
func (b *Builder) validateSemantic(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seenInputs := make(map[string]bool, len(def.Inputs))
	for i, f := range def.Inputs {
		if seenInputs[f.Name] {
			result.AddError(fmt.Sprintf("inputs[%d].name", i), schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("duplicate input field %q", f.Name))
		}
		seenInputs[f.Name] = true
	}

	seenStages := make(map[string]bool, len(def.Stages))
	for i, st := range def.Stages {
		path := fmt.Sprintf("stages[%d]", i)

		if seenStages[st.Name] {
			result.AddError(path+".name", schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("duplicate stage name %q", st.Name))
		}
		seenStages[st.Name] = true

		if b.caps != nil && !b.caps.Has(st.Capability) {
			result.AddError(path+".capability", schema.ErrCodeUnknownStage,
				fmt.Sprintf("capability %q not registered", st.Capability))
		}

		if st.Condition != "" && b.conditions != nil {
			if err := b.conditions.Check(st.Condition); err != nil {
				result.AddError(path+".condition", schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("condition does not compile: %v", err))
			}
		}
	}

	seenFields := make(map[string]bool, len(def.Merge))
	for i, rule := range def.Merge {
		path := fmt.Sprintf("merge[%d]", i)

		if seenFields[rule.Field] {
			result.AddError(path+".field", schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("duplicate merge field %q", rule.Field))
		}
		seenFields[rule.Field] = true

		sources := 0
		if rule.From != "" {
			sources++
		}
		if rule.Expr != "" {
			sources++
		}
		if rule.Compute != "" {
			sources++
		}
		if sources != 1 {
			result.AddError(path, schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("merge field %q needs exactly one of from, expr, compute", rule.Field))
			continue
		}
		if len(rule.Attach) > 0 && rule.From == "" {
			result.AddError(path+".attach", schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("merge field %q: attach requires from", rule.Field))
		}

		if rule.Expr != "" && b.merges != nil {
			if err := b.merges.Check(rule.Expr); err != nil {
				result.AddError(path+".expr", schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("expr does not compile: %v", err))
			}
		}
		if rule.Compute != "" && b.computes != nil {
			if err := b.computes.Check(rule.Compute); err != nil {
				result.AddError(path+".compute", schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("compute does not compile: %v", err))
			}
		}
	}

	return result
}

// placeholderPattern matches ${{ ... }} references embedded in stage params.
var placeholderPattern = regexp.MustCompile(`\$\{\{\s*([^}]*?)\s*\}\}`)

// validateWiring walks stages in declared order, tracking the context keys
// available at each point. Every needs key and every stages.* param
// reference must be satisfied by an input field or an earlier stage's
// output; output keys must be unique and disjoint from input keys.
func (b *Builder) validateWiring(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	inputKeys := make(map[string]bool, len(def.Inputs))
	for _, f := range def.Inputs {
		inputKeys[f.Name] = true
	}

	available := make(map[string]bool, len(def.Inputs)+len(def.Stages))
	for k := range inputKeys {
		available[k] = true
	}
	produced := make(map[string]bool, len(def.Stages))

	for i, st := range def.Stages {
		path := fmt.Sprintf("stages[%d]", i)

		for j, need := range st.Needs {
			if !available[need] {
				result.AddError(fmt.Sprintf("%s.needs[%d]", path, j), schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("stage %q needs %q, which no input field or earlier stage provides", st.Name, need))
			}
		}

		b.checkParamRefs(st, path, inputKeys, produced, result)

		if inputKeys[st.Output] {
			result.AddError(path+".output", schema.ErrCodeDuplicateOutputKey,
				fmt.Sprintf("stage %q output key %q collides with an input field", st.Name, st.Output))
		} else if produced[st.Output] {
			result.AddError(path+".output", schema.ErrCodeDuplicateOutputKey,
				fmt.Sprintf("stage %q output key %q already produced by an earlier stage", st.Name, st.Output))
		}
		produced[st.Output] = true
		available[st.Output] = true
	}

	for i, rule := range def.Merge {
		path := fmt.Sprintf("merge[%d]", i)
		if rule.From != "" && !available[rule.From] {
			result.AddError(path+".from", schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("merge field %q copies %q, which no input field or stage provides", rule.Field, rule.From))
		}
		for nested, key := range rule.Attach {
			if !available[key] {
				result.AddError(path+".attach", schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("merge field %q attaches %q from %q, which no input field or stage provides", rule.Field, nested, key))
			}
		}
	}

	return result
}

// checkParamRefs validates the ${{...}} references embedded in a stage's
// raw params against the keys available before the stage runs.
func (b *Builder) checkParamRefs(st schema.StageDescriptor, path string, inputKeys, produced map[string]bool, result *schema.ValidationResult) {
	if len(st.Params) == 0 {
		return
	}

	for _, match := range placeholderPattern.FindAllStringSubmatch(string(st.Params), -1) {
		expr := match[1]
		parts := strings.SplitN(expr, ".", 3)
		if len(parts) < 2 || parts[1] == "" {
			result.AddError(path+".params", schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("invalid reference ${{%s}}: expected <namespace>.<key>", expr))
			continue
		}

		switch parts[0] {
		case "stages":
			if !produced[parts[1]] {
				result.AddError(path+".params", schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("stage %q references ${{%s}}, but no earlier stage outputs %q", st.Name, expr, parts[1]))
			}
		case "inputs":
			if !inputKeys[parts[1]] {
				result.AddError(path+".params", schema.ErrCodeMalformedWorkflow,
					fmt.Sprintf("stage %q references ${{%s}}, but input %q is not declared", st.Name, expr, parts[1]))
			}
		case "run":
			// Run metadata is populated by the executor, always available.
		default:
			result.AddError(path+".params", schema.ErrCodeMalformedWorkflow,
				fmt.Sprintf("unknown namespace %q in ${{%s}}; available: stages, inputs, run", parts[0], expr))
		}
	}
}
