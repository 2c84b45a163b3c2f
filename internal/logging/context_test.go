package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-1")
	ctx = WithWorkflow(ctx, "content-pipeline")
	ctx = WithStage(ctx, "hunt_trends")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "content-pipeline", Workflow(ctx))
	assert.Equal(t, "hunt_trends", Stage(ctx))
}

func TestContextValues_AbsentDefaultsToEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, Workflow(ctx))
	assert.Empty(t, Stage(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithStage(WithRunID(context.Background(), "run-42"), "forge_script")
	logger.InfoContext(ctx, "stage started")

	out := buf.String()
	require.Contains(t, out, "run_id=run-42")
	require.Contains(t, out, "stage=forge_script")
}

func TestCorrelationHandler_NoIDsNoAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain message")

	out := buf.String()
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "stage=")
}
