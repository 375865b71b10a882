package timeline

import (
	"context"
	"log/slog"

	"loom/internal/logging"
	"loom/internal/store"
)

// Recorder appends timeline events without letting timeline persistence
// failures disturb task execution. A dropped event is logged and forgotten.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger
}

// New constructs a recorder over the given store.
func New(st *store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{store: st, logger: logger.With(logging.String(logging.FieldComponent, "timeline"))}
}

// TaskEvent records a task-scoped event.
func (r *Recorder) TaskEvent(ctx context.Context, task *store.Task, eventType, message string) {
	r.append(ctx, &store.Event{
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskName:  task.TaskName,
		AgentRole: task.AgentRole,
		EventType: eventType,
		Message:   message,
	})
}

// StatusChanged records a request lifecycle transition.
func (r *Recorder) StatusChanged(ctx context.Context, requestID string, from, to store.RequestStatus) {
	r.append(ctx, &store.Event{
		RequestID: requestID,
		EventType: store.EventStatusChanged,
		Message:   string(from) + " -> " + string(to),
	})
}

func (r *Recorder) append(ctx context.Context, event *store.Event) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.logger.Warn("dropping timeline event", logging.Args(
			logging.String(logging.FieldRequestID, event.RequestID),
			logging.String(logging.FieldEventType, event.EventType),
			logging.Error(err),
		)...)
	}
}
