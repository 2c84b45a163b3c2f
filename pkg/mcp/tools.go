package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// handleRun executes a registered workflow.
func (s *StagelineServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	inputs := mcp.ParseStringMap(req, "inputs", nil)

	report, runErr := s.runs.Run(ctx, name, inputs)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", runErr)), nil
	}

	return marshalResult(report)
}

// handleReport fetches the stored report for a past run.
func (s *StagelineServer) handleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, getErr := s.store.GetRun(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", getErr)), nil
	}

	return marshalResult(run)
}

// handleWorkflows lists registered workflows.
func (s *StagelineServer) handleWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs := s.library.List()
	out := make([]*schema.WorkflowDefinition, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Descriptor())
	}
	return marshalResult(map[string]any{"workflows": out})
}

// handleCapabilities lists registered stage capabilities.
func (s *StagelineServer) handleCapabilities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"capabilities": s.registry.List()})
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
