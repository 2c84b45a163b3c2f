package expressions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope() *Scope {
	return &Scope{
		Stages: map[string]any{
			"trends": map[string]any{
				"topics": []any{
					map[string]any{"title": "Gym fails", "relevance_score": 8.5},
				},
			},
			"script": map[string]any{"title": "Gym memes", "full_script": "..."},
		},
		Inputs: map[string]any{"niche": "fitness", "count": float64(3)},
		Run:    map[string]any{"run_id": "run-1", "workflow": "content-pipeline"},
	}
}

func TestInterpolator_InputsReference(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"niche": "${{inputs.niche}}"}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"niche": "fitness"}`, string(out))
}

func TestInterpolator_StageFieldReference(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"script_title": "${{stages.script.title}}"}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"script_title": "Gym memes"}`, string(out))
}

func TestInterpolator_WholeStageValue(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"script": ${{stages.script}}}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"script": {"title": "Gym memes", "full_script": "..."}}`, string(out))
}

func TestInterpolator_RunMetadata(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"tag": "run ${{run.run_id}}"}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag": "run run-1"}`, string(out))
}

func TestInterpolator_NumericValue(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"count": ${{inputs.count}}}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 3}`, string(out))
}

func TestInterpolator_TypedWholeStringSubstitution(t *testing.T) {
	interp := NewInterpolator()

	scope := testScope()
	scope.Inputs["send"] = false

	raw := json.RawMessage(`{"count": "${{inputs.count}}", "send": "${{inputs.send}}"}`)
	out, err := interp.Resolve(context.Background(), raw, scope)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 3, "send": false}`, string(out))
}

func TestInterpolator_ConcatenationStaysText(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"q": "${{inputs.niche}} top ${{inputs.count}}"}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"q": "fitness top 3"}`, string(out))
}

func TestInterpolator_NoReferencesPassthrough(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"static": true}`)
	out, err := interp.Resolve(context.Background(), raw, testScope())
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(out))
}

func TestInterpolator_UnknownNamespace(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"v": "${{secrets.KEY}}"}`)
	_, err := interp.Resolve(context.Background(), raw, testScope())
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeInterpolation, serr.Code)
}

func TestInterpolator_MissingStageKey(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"v": "${{stages.analytics.views}}"}`)
	_, err := interp.Resolve(context.Background(), raw, testScope())
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeInterpolation, serr.Code)
	assert.Contains(t, serr.Message, "analytics")
}

func TestInterpolator_UnclosedExpression(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"v": "${{inputs.niche"}`)
	_, err := interp.Resolve(context.Background(), raw, testScope())
	require.Error(t, err)
}

func TestInterpolator_NestedInterpolationRejected(t *testing.T) {
	interp := NewInterpolator()

	raw := json.RawMessage(`{"v": "${{inputs.${{inputs.niche}}}}"}`)
	_, err := interp.Resolve(context.Background(), raw, testScope())
	require.Error(t, err)
}

func TestHasInterpolation(t *testing.T) {
	assert.True(t, HasInterpolation(json.RawMessage(`{"v": "${{inputs.x}}"}`)))
	assert.False(t, HasInterpolation(json.RawMessage(`{"v": "plain"}`)))
}
