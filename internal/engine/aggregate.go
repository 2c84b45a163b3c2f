package engine

import (
	"context"

	"github.com/stagelinehq/stageline/internal/expressions"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// Aggregator assembles the final payload from the accumulated run context
// according to a workflow's merge rules.
type Aggregator struct {
	merges   *expressions.GoJQEngine
	computes *expressions.ExprEngine
}

// NewAggregator creates an Aggregator backed by the given engines.
func NewAggregator(merges *expressions.GoJQEngine, computes *expressions.ExprEngine) *Aggregator {
	return &Aggregator{merges: merges, computes: computes}
}

// Aggregate applies the merge rules over the run context (stage outputs plus
// inputs, disjoint by construction). A rule whose source is absent is
// omitted from the payload, never set to null; a required rule with an
// absent source flags the payload partial. Expression evaluation errors
// abort aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, rules []schema.MergeRule, contextMap map[string]any) (map[string]any, bool, error) {
	payload := make(map[string]any, len(rules))
	partial := false

	for _, rule := range rules {
		value, present, err := a.resolveRule(ctx, rule, contextMap)
		if err != nil {
			return nil, false, err
		}
		if !present {
			if rule.Required {
				partial = true
			}
			continue
		}
		payload[rule.Field] = value
	}

	return payload, partial, nil
}

// resolveRule evaluates one merge rule. present is false when the source is
// absent (skipped stage, optional input, expression yielding null).
func (a *Aggregator) resolveRule(ctx context.Context, rule schema.MergeRule, contextMap map[string]any) (any, bool, error) {
	switch {
	case rule.From != "":
		value, ok := contextMap[rule.From]
		if !ok {
			return nil, false, nil
		}
		if len(rule.Attach) == 0 {
			return value, true, nil
		}
		return a.attach(rule, value, contextMap)

	case rule.Expr != "":
		result, err := a.merges.Evaluate(ctx, rule.Expr, contextMap)
		if err != nil {
			return nil, false, schema.NewErrorf(schema.ErrCodeExecution,
				"merge field %q: %s", rule.Field, err.Error()).WithCause(err)
		}
		if result == nil {
			return nil, false, nil
		}
		return result, true, nil

	case rule.Compute != "":
		result, err := a.computes.Evaluate(ctx, rule.Compute, contextMap)
		if err != nil {
			return nil, false, schema.NewErrorf(schema.ErrCodeExecution,
				"merge field %q: %s", rule.Field, err.Error()).WithCause(err)
		}
		if result == nil {
			return nil, false, nil
		}
		return result, true, nil
	}

	return nil, false, schema.NewErrorf(schema.ErrCodeMalformedWorkflow,
		"merge field %q has no source", rule.Field)
}

// attach copies the From record and nests other context keys into the copy.
// Absent attach sources are skipped; the copy keeps the base record intact
// for later rules reading the same key.
func (a *Aggregator) attach(rule schema.MergeRule, base any, contextMap map[string]any) (any, bool, error) {
	record, ok := base.(map[string]any)
	if !ok {
		return nil, false, schema.NewErrorf(schema.ErrCodeExecution,
			"merge field %q: attach target %q is not an object", rule.Field, rule.From)
	}

	combined := make(map[string]any, len(record)+len(rule.Attach))
	for k, v := range record {
		combined[k] = v
	}
	for nested, key := range rule.Attach {
		if v, ok := contextMap[key]; ok {
			combined[nested] = v
		}
	}
	return combined, true, nil
}
