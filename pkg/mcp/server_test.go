package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStagelineServer(t *testing.T) {
	s := NewStagelineServer(StagelineServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
}

func TestToolRegistration(t *testing.T) {
	s := NewStagelineServer(StagelineServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 4)

	expectedTools := []string{
		"stageline.run",
		"stageline.report",
		"stageline.workflows",
		"stageline.capabilities",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"run", "stageline.run", "Execute a registered workflow and return its report"},
		{"report", "stageline.report", "Fetch the stored report for a past run"},
		{"workflows", "stageline.workflows", "List registered workflows with their inputs and stages"},
		{"capabilities", "stageline.capabilities", "List registered stage capabilities"},
	}

	s := NewStagelineServer(StagelineServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
