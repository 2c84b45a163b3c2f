package server

import (
	"context"
	"log/slog"

	"github.com/stagelinehq/stageline/internal/engine"
	"github.com/stagelinehq/stageline/internal/store"
	"github.com/stagelinehq/stageline/internal/workflow"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// RunService ties the workflow library, executor and store together: it
// resolves a workflow, builds the input set, executes the run and persists
// the outcome. Also satisfies scheduler.RunDispatcher.
type RunService struct {
	library  *workflow.Library
	executor *engine.Executor
	store    store.Store
	logger   *slog.Logger
}

// NewRunService creates a RunService.
func NewRunService(lib *workflow.Library, exec *engine.Executor, s store.Store, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{library: lib, executor: exec, store: s, logger: logger}
}

// Run executes the named workflow with the given inputs and persists the
// run record. An error is returned only for failures before execution
// starts (unknown workflow, invalid inputs); execution failures are
// reported inside the returned report.
func (rs *RunService) Run(ctx context.Context, name string, inputs map[string]any) (*schema.WorkflowReport, error) {
	def, err := rs.library.Get(name)
	if err != nil {
		return nil, err
	}

	resolved, err := def.BuildRequest(inputs)
	if err != nil {
		return nil, err
	}

	report := rs.executor.Execute(ctx, def, resolved)

	run := &store.Run{
		ID:          report.RunID,
		Workflow:    report.Workflow,
		Status:      report.Status,
		Partial:     report.Partial,
		Inputs:      resolved,
		Report:      report,
		Payload:     report.Payload,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
	}
	if err := rs.store.SaveRun(ctx, run); err != nil {
		rs.logger.ErrorContext(ctx, "persist run failed",
			"run_id", report.RunID, "workflow", name, "error", err)
	}

	return report, nil
}

// Dispatch runs a workflow on behalf of the scheduler and returns the run ID.
func (rs *RunService) Dispatch(ctx context.Context, name string, inputs map[string]any) (string, error) {
	report, err := rs.Run(ctx, name, inputs)
	if err != nil {
		return "", err
	}
	return report.RunID, nil
}
