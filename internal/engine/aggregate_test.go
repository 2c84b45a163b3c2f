package engine

import (
	"context"
	"testing"

	"github.com/stagelinehq/stageline/internal/expressions"
	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(expressions.NewGoJQEngine(), expressions.NewExprEngine())
}

func TestAggregator_FromCopiesContextKey(t *testing.T) {
	a := newTestAggregator()

	payload, partial, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "script", From: "script", Required: true}},
		map[string]any{"script": map[string]any{"hook": "Wait..."}},
	)
	require.NoError(t, err)
	assert.False(t, partial)
	assert.Equal(t, map[string]any{"hook": "Wait..."}, payload["script"])
}

func TestAggregator_AttachNestsIntoCopy(t *testing.T) {
	a := newTestAggregator()

	contextMap := map[string]any{
		"script":   map[string]any{"hook": "Wait..."},
		"sponsors": map[string]any{"brands": []any{"GymBrand"}},
	}

	payload, _, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{
			{Field: "script", From: "script", Attach: map[string]string{"sponsors": "sponsors"}},
		},
		contextMap,
	)
	require.NoError(t, err)

	merged := payload["script"].(map[string]any)
	assert.Equal(t, "Wait...", merged["hook"])
	assert.Equal(t, map[string]any{"brands": []any{"GymBrand"}}, merged["sponsors"])

	// The base record in the context stays untouched.
	base := contextMap["script"].(map[string]any)
	assert.NotContains(t, base, "sponsors")
}

func TestAggregator_AbsentOptionalOmitted(t *testing.T) {
	a := newTestAggregator()

	payload, partial, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{
			{Field: "script", From: "script", Required: true},
			{Field: "analytics", From: "analytics"},
		},
		map[string]any{"script": map[string]any{"hook": "h"}},
	)
	require.NoError(t, err)
	assert.False(t, partial)

	// Absent, not null.
	_, exists := payload["analytics"]
	assert.False(t, exists)
}

func TestAggregator_RequiredAbsentFlagsPartial(t *testing.T) {
	a := newTestAggregator()

	payload, partial, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{
			{Field: "script", From: "script", Required: true},
			{Field: "trends", From: "trends"},
		},
		map[string]any{"trends": map[string]any{"topics": []any{}}},
	)
	require.NoError(t, err)
	assert.True(t, partial)

	// The rest of the payload is still assembled.
	assert.Contains(t, payload, "trends")
	assert.NotContains(t, payload, "script")
}

func TestAggregator_ExprRule(t *testing.T) {
	a := newTestAggregator()

	payload, _, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "titles", Expr: ".trends.topics | map(.title)"}},
		map[string]any{
			"trends": map[string]any{
				"topics": []any{
					map[string]any{"title": "A"},
					map[string]any{"title": "B"},
				},
			},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B"}, payload["titles"])
}

func TestAggregator_ExprNullOmitted(t *testing.T) {
	a := newTestAggregator()

	payload, partial, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "rate", Expr: ".analytics.account.engagement_rate"}},
		map[string]any{"script": map[string]any{}},
	)
	require.NoError(t, err)
	assert.False(t, partial)
	assert.NotContains(t, payload, "rate")
}

func TestAggregator_ComputeRule(t *testing.T) {
	a := newTestAggregator()

	payload, _, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "pitch_count", Compute: "pitches != nil ? len(pitches.pitches) : 0"}},
		map[string]any{
			"pitches": map[string]any{"pitches": []any{map[string]any{}, map[string]any{}}},
		},
	)
	require.NoError(t, err)
	assert.EqualValues(t, 2, payload["pitch_count"])
}

func TestAggregator_ComputeWithAbsentVariable(t *testing.T) {
	a := newTestAggregator()

	payload, _, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "pitch_count", Compute: "pitches != nil ? len(pitches.pitches) : 0"}},
		map[string]any{},
	)
	require.NoError(t, err)
	assert.EqualValues(t, 0, payload["pitch_count"])
}

func TestAggregator_ExprErrorAborts(t *testing.T) {
	a := newTestAggregator()

	_, _, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "bad", Expr: ".trends | keys"}},
		map[string]any{"trends": "not an object"},
	)
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeExecution, serr.Code)
}

func TestAggregator_AttachTargetNotObject(t *testing.T) {
	a := newTestAggregator()

	_, _, err := a.Aggregate(context.Background(),
		[]schema.MergeRule{{Field: "out", From: "val", Attach: map[string]string{"extra": "other"}}},
		map[string]any{"val": "scalar", "other": 1},
	)
	require.Error(t, err)
}
