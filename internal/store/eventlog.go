package store

import (
	"context"
	"log/slog"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// EventLog adapts a Store to the executor's event sink. Persistence failures
// are logged and swallowed so a degraded database never fails a running
// workflow.
type EventLog struct {
	store  Store
	logger *slog.Logger
}

// NewEventLog wraps a Store as an event sink.
func NewEventLog(s Store, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{store: s, logger: logger}
}

// Emit persists the event to the run_events log.
func (el *EventLog) Emit(ctx context.Context, event *schema.RunEvent) {
	if err := el.store.AppendEvent(ctx, event); err != nil {
		el.logger.ErrorContext(ctx, "persist run event failed",
			"run_id", event.RunID, "seq", event.Seq, "type", event.Type, "error", err)
	}
}
