package schema

import "time"

// RunEvent is one entry in a run's append-only event log. Seq is assigned
// per run, starting at 1, in emission order.
type RunEvent struct {
	RunID     string         `json:"run_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Stage     string         `json:"stage,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
