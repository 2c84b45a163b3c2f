package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stagelinehq/stageline/internal/store"
	"github.com/stagelinehq/stageline/pkg/schema"
)

const defaultRunsLimit = 20

// handleRunWorkflow runs the named workflow synchronously and responds with
// the full report. Stage failures are part of a successful response; only
// pre-execution errors map to non-200 statuses.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Inputs map[string]any `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, schema.ErrCodeInvalidInput, "invalid JSON body: "+err.Error())
		return
	}

	report, err := s.deps.Runs.Run(r.Context(), name, body.Inputs)
	if err != nil {
		writeSchemaError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := s.deps.Library.List()
	out := make([]*schema.WorkflowDefinition, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Descriptor())
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

func (s *Server) handleWorkflowDetail(w http.ResponseWriter, r *http.Request) {
	def, err := s.deps.Library.Get(r.PathValue("name"))
	if err != nil {
		writeSchemaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def.Descriptor())
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.deps.Registry.List()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Workflow: r.URL.Query().Get("workflow"),
		Status:   schema.RunStatus(r.URL.Query().Get("status")),
		Limit:    queryInt(r, "limit", defaultRunsLimit),
	}

	runs, err := s.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeSchemaError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSchemaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	since := int64(queryInt(r, "since", 0))

	events, err := s.deps.Store.ListEvents(r.Context(), runID, since)
	if err != nil {
		writeSchemaError(w, err)
		return
	}
	if events == nil {
		events = []*schema.RunEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": events})
}
