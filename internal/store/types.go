package store

import (
	"time"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// Run is the persisted record of one workflow execution.
type Run struct {
	ID          string                 `json:"id"`
	Workflow    string                 `json:"workflow"`
	Status      schema.RunStatus       `json:"status"`
	Partial     bool                   `json:"partial,omitempty"`
	Inputs      map[string]any         `json:"inputs,omitempty"`
	Report      *schema.WorkflowReport `json:"report,omitempty"`
	Payload     map[string]any         `json:"payload,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// RunFilter narrows ListRuns. Zero values mean "any".
type RunFilter struct {
	Workflow string
	Status   schema.RunStatus
	Limit    int
}

// Schedule is a cron-triggered workflow run.
type Schedule struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Workflow  string         `json:"workflow"`
	Cron      string         `json:"cron"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Enabled   bool           `json:"enabled"`
	LastRunID string         `json:"last_run_id,omitempty"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt *time.Time     `json:"next_run_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ScheduleUpdate carries partial updates; nil fields are left unchanged.
type ScheduleUpdate struct {
	Enabled   *bool
	LastRunID *string
	LastRunAt *time.Time
	NextRunAt *time.Time
}
