package expressions

import (
	"context"
	"testing"

	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_FieldExtraction(t *testing.T) {
	e := NewGoJQEngine()

	data := map[string]any{
		"stages": map[string]any{
			"script": map[string]any{"title": "Gym memes", "word_count": 480},
		},
	}

	out, err := e.Evaluate(context.Background(), `.stages.script.title`, data)
	require.NoError(t, err)
	assert.Equal(t, "Gym memes", out)
}

func TestGoJQ_ArrayTransform(t *testing.T) {
	e := NewGoJQEngine()

	data := map[string]any{
		"stages": map[string]any{
			"sponsors": map[string]any{
				"brands": []any{
					map[string]any{"name": "GymBrand", "score": 8.5},
					map[string]any{"name": "ShakeCo", "score": 6.0},
				},
			},
		},
	}

	out, err := e.Evaluate(context.Background(), `[.stages.sponsors.brands[].name]`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"GymBrand", "ShakeCo"}, out)
}

func TestGoJQ_MultipleOutputsCollected(t *testing.T) {
	e := NewGoJQEngine()

	data := map[string]any{"items": []any{1, 2, 3}}

	out, err := e.Evaluate(context.Background(), `.items[]`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out)
}

func TestGoJQ_NoOutputReturnsNil(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `.missing.field?`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_IntegersNormalizedToFloat(t *testing.T) {
	e := NewGoJQEngine()

	data := map[string]any{"count": 7}

	out, err := e.Evaluate(context.Background(), `.count + 1`, data)
	require.NoError(t, err)
	assert.Equal(t, float64(8), out)
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), `.[unclosed`, map[string]any{})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeMalformedWorkflow, serr.Code)
}

func TestGoJQ_EmptyExpression(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), "", map[string]any{})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeMalformedWorkflow, serr.Code)
}

func TestGoJQ_EnvAccessBlocked(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `env | length`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestGoJQ_Check(t *testing.T) {
	e := NewGoJQEngine()

	assert.NoError(t, e.Check(`.stages.trends.topics`))
	assert.Error(t, e.Check(`.[bad`))
}
