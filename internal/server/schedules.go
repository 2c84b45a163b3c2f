package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagelinehq/stageline/internal/store"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// handleCreateSchedule registers a cron schedule for a workflow.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string         `json:"name"`
		Workflow string         `json:"workflow"`
		Cron     string         `json:"cron"`
		Inputs   map[string]any `json:"inputs"`
		Enabled  *bool          `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrCodeInvalidInput, "invalid JSON body: "+err.Error())
		return
	}
	if body.Name == "" || body.Workflow == "" || body.Cron == "" {
		writeError(w, http.StatusBadRequest, schema.ErrCodeInvalidInput, "name, workflow and cron are required")
		return
	}

	// The workflow must exist so a schedule never points into the void.
	if _, err := s.deps.Library.Get(body.Workflow); err != nil {
		writeSchemaError(w, err)
		return
	}

	now := time.Now().UTC()
	next, err := s.deps.Scheduler.NextRun(body.Cron, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrCodeInvalidInput, err.Error())
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	sched := &store.Schedule{
		ID:        uuid.NewString(),
		Name:      body.Name,
		Workflow:  body.Workflow,
		Cron:      body.Cron,
		Inputs:    body.Inputs,
		Enabled:   enabled,
		NextRunAt: &next,
	}
	if err := s.deps.Store.CreateSchedule(r.Context(), sched); err != nil {
		writeSchemaError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := r.URL.Query().Get("enabled") == "true"

	schedules, err := s.deps.Store.ListSchedules(r.Context(), onlyEnabled)
	if err != nil {
		writeSchemaError(w, err)
		return
	}
	if schedules == nil {
		schedules = []*store.Schedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.deps.Store.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSchemaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeSchemaError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
