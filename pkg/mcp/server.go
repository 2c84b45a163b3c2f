package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stagelinehq/stageline/internal/capability"
	stageserver "github.com/stagelinehq/stageline/internal/server"
	"github.com/stagelinehq/stageline/internal/store"
	"github.com/stagelinehq/stageline/internal/workflow"
)

// StagelineServerDeps holds the dependencies for creating a StagelineServer.
type StagelineServerDeps struct {
	Runs     *stageserver.RunService
	Library  *workflow.Library
	Registry *capability.Registry
	Store    store.Store
	Logger   *slog.Logger
}

// StagelineServer wraps an MCP server with stageline-specific tool handlers.
type StagelineServer struct {
	runs      *stageserver.RunService
	library   *workflow.Library
	registry  *capability.Registry
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStagelineServer creates a new StagelineServer with all 4 tools registered.
func NewStagelineServer(deps StagelineServerDeps) *StagelineServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StagelineServer{
		runs:     deps.Runs,
		library:  deps.Library,
		registry: deps.Registry,
		store:    deps.Store,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"stageline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stageline is a content workflow orchestrator. Use stageline.run to execute a workflow, stageline.report to fetch a run's report, stageline.workflows to list registered workflows, and stageline.capabilities to list stage capabilities."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StagelineServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StagelineServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 4 registered MCP tools as ServerTool entries.
func (s *StagelineServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: reportTool(), Handler: s.handleReport},
		{Tool: workflowsTool(), Handler: s.handleWorkflows},
		{Tool: capabilitiesTool(), Handler: s.handleCapabilities},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("stageline.run",
		mcp.WithDescription("Execute a registered workflow and return its report"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the workflow to execute")),
		mcp.WithObject("inputs", mcp.Description("Input fields for the workflow")),
	)
}

func reportTool() mcp.Tool {
	return mcp.NewTool("stageline.report",
		mcp.WithDescription("Fetch the stored report for a past run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to fetch")),
	)
}

func workflowsTool() mcp.Tool {
	return mcp.NewTool("stageline.workflows",
		mcp.WithDescription("List registered workflows with their inputs and stages"),
	)
}

func capabilitiesTool() mcp.Tool {
	return mcp.NewTool("stageline.capabilities",
		mcp.WithDescription("List registered stage capabilities"),
	)
}
