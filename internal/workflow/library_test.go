package workflow

import (
	"testing"

	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltins(t *testing.T) {
	b := newTestBuilder(t, allCapabilities())
	lib := NewLibrary()

	require.NoError(t, LoadBuiltins(b, lib))
	assert.Equal(t, 5, lib.Count())

	names := make([]string, 0, 5)
	for _, d := range lib.List() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{
		"analytics-report",
		"content-pipeline",
		"script-only",
		"sponsor-outreach",
		"video-phase",
	}, names)
}

func TestBuiltins_ContentPipelineOrder(t *testing.T) {
	b := newTestBuilder(t, allCapabilities())
	lib := NewLibrary()
	require.NoError(t, LoadBuiltins(b, lib))

	def, err := lib.Get("content-pipeline")
	require.NoError(t, err)

	var caps []string
	for _, st := range def.Stages() {
		caps = append(caps, st.Capability)
	}
	// The script precedes sponsor matching so pitches can quote it.
	assert.Equal(t, []string{"trends.scout", "script.forge", "sponsors.hunt", "pitch.outreach"}, caps)
}

func TestBuiltins_FailWithoutCapabilities(t *testing.T) {
	b := newTestBuilder(t, stubLookup{})
	lib := NewLibrary()

	err := LoadBuiltins(b, lib)
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUnknownStage, serr.Code)
}

func TestLibrary_GetUnknown(t *testing.T) {
	lib := NewLibrary()

	_, err := lib.Get("nope")
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestLibrary_DuplicateAdd(t *testing.T) {
	b := newTestBuilder(t, allCapabilities())

	def, err := b.Build(pipelineDefinition())
	require.NoError(t, err)

	lib := NewLibrary()
	require.NoError(t, lib.Add(def))
	require.Error(t, lib.Add(def))
}
