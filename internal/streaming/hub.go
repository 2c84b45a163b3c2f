package streaming

import (
	"context"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// EventFilter specifies which run events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event *schema.RunEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan *schema.RunEvent, func(), error)
}
