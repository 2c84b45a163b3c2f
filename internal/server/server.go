package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/stagelinehq/stageline/internal/capability"
	"github.com/stagelinehq/stageline/internal/scheduler"
	"github.com/stagelinehq/stageline/internal/store"
	"github.com/stagelinehq/stageline/internal/streaming"
	"github.com/stagelinehq/stageline/internal/workflow"
)

// Deps holds the dependencies for the HTTP API server.
type Deps struct {
	Library   *workflow.Library
	Runs      *RunService
	Registry  *capability.Registry
	Store     store.Store
	Hub       streaming.EventHub
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
}

// Server exposes the workflow API over HTTP.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/capabilities", s.handleCapabilities)

	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{name}", s.handleWorkflowDetail)
	mux.HandleFunc("POST /api/workflows/{name}/run", s.handleRunWorkflow)

	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunDetail)
	mux.HandleFunc("GET /api/runs/{id}/events", s.handleRunEvents)
	mux.HandleFunc("GET /api/runs/{id}/stream", s.handleRunStream)

	mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("GET /api/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
