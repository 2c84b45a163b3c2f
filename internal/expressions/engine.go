package expressions

import "context"

// Engine evaluates expressions within workflow stages.
// Three implementations: CEL (stage conditions), GoJQ (merge transforms),
// Expr (computed merge fields).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
