package schema

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StageStatus represents the outcome of a single stage within a run.
type StageStatus string

const (
	StageStatusSuccess StageStatus = "success"
	StageStatusFailure StageStatus = "failure"
	StageStatusSkipped StageStatus = "skipped"
)

// Event type constants for the run event log.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
	EventStageSkipped   = "stage_skipped"
)

// StageResult is the tagged outcome of one stage: success with a value,
// failure with a kind and message, or skipped. Never more than one.
type StageResult struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	Value      any         `json:"value,omitempty"`
	Failure    *Error      `json:"failure,omitempty"`
	SkipReason string      `json:"skip_reason,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
}

// WorkflowReport is the per-execution record returned to the caller: an
// ordered list of stage outcomes plus the aggregated payload. It is created
// for one external request and discarded after the response is sent.
type WorkflowReport struct {
	RunID       string         `json:"run_id"`
	Workflow    string         `json:"workflow"`
	Status      RunStatus      `json:"status"`
	Stages      []StageResult  `json:"stages"`
	Payload     map[string]any `json:"payload,omitempty"`
	Partial     bool           `json:"partial,omitempty"`
	Error       *Error         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// FirstFailure returns the first failed stage result, or nil if every stage
// succeeded or was skipped.
func (r *WorkflowReport) FirstFailure() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Status == StageStatusFailure {
			return &r.Stages[i]
		}
	}
	return nil
}
