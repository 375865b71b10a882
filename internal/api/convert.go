package api

import (
	"loom/internal/breaker"
	"loom/internal/orchestrator"
	"loom/internal/progress"
	"loom/internal/store"
)

// FromRequest converts a stored request to its wire form.
func FromRequest(request *store.Request) RequestView {
	return RequestView{
		ID:          request.ID,
		RequestType: string(request.RequestType),
		Status:      string(request.Status),
		Title:       request.Title,
		Metadata:    request.Metadata,
		CreatedAt:   request.CreatedAt,
		UpdatedAt:   request.UpdatedAt,
	}
}

// FromRequests converts a stored request slice to wire form.
func FromRequests(requests []*store.Request) []RequestView {
	views := make([]RequestView, 0, len(requests))
	for _, request := range requests {
		views = append(views, FromRequest(request))
	}
	return views
}

// FromTask converts a stored task to its wire form.
func FromTask(task *store.Task) TaskView {
	return TaskView{
		ID:            task.ID,
		RequestID:     task.RequestID,
		TaskKey:       task.TaskKey,
		TaskName:      task.TaskName,
		AgentRole:     string(task.AgentRole),
		Status:        string(task.Status),
		Sequence:      task.Sequence,
		OutputData:    task.OutputData,
		OutputURL:     task.OutputURL,
		ErrorMessage:  task.ErrorMessage,
		CorrelationID: task.CorrelationID,
		RetryCount:    task.RetryCount,
		NextRetryAt:   task.NextRetryAt,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
	}
}

// FromTasks converts a stored task slice to wire form.
func FromTasks(tasks []*store.Task) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, FromTask(task))
	}
	return views
}

// FromEvents converts timeline events to wire form.
func FromEvents(events []*store.Event) []EventView {
	views := make([]EventView, 0, len(events))
	for _, event := range events {
		views = append(views, EventView{
			ID:        event.ID,
			TaskName:  event.TaskName,
			AgentRole: string(event.AgentRole),
			EventType: event.EventType,
			Message:   event.Message,
			CreatedAt: event.CreatedAt,
		})
	}
	return views
}

// FromSnapshot converts a progress snapshot to wire form.
func FromSnapshot(snap *progress.Snapshot) ProgressView {
	return ProgressView{
		RequestID:                 snap.RequestID,
		Status:                    string(snap.Status),
		Phase:                     string(snap.Phase),
		Percent:                   snap.Percent,
		TasksTotal:                snap.TasksTotal,
		TasksCompleted:            snap.TasksCompleted,
		TasksInProgress:           snap.TasksInProgress,
		TasksFailed:               snap.TasksFailed,
		TasksPending:              snap.TasksPending,
		EstimatedSecondsRemaining: snap.EstimatedSecondsRemaining,
	}
}

// FromBreakerStatuses converts breaker snapshots to wire form.
func FromBreakerStatuses(statuses []breaker.Status) []BreakerView {
	views := make([]BreakerView, 0, len(statuses))
	for _, status := range statuses {
		view := BreakerView{
			Name:     status.Name,
			State:    string(status.State),
			Failures: status.Failures,
		}
		if !status.LastFailure.IsZero() {
			lastFailure := status.LastFailure
			view.LastFailure = &lastFailure
		}
		views = append(views, view)
	}
	return views
}

// FromSummary converts an orchestration pass summary to wire form.
func FromSummary(summary *orchestrator.Summary) ProcessResult {
	return ProcessResult{
		RequestID:      summary.RequestID,
		FinalStatus:    string(summary.FinalStatus),
		TasksRun:       summary.TasksRun,
		Skipped:        summary.Skipped,
		Waiting:        summary.Waiting,
		RetryScheduled: summary.RetryScheduled,
		NextRetryAt:    summary.NextRetryAt,
		Stalled:        summary.Stalled,
		BlockedOn:      summary.BlockedOn,
	}
}
