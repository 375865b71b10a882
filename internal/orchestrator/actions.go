package orchestrator

import (
	"context"
	"fmt"

	"loom/internal/lifecycle"
	"loom/internal/logging"
	"loom/internal/services"
	"loom/internal/services/engine"
	"loom/internal/store"
)

// Approve publishes a request sitting in qa. The qa stage never
// auto-advances, so this is the only path to published.
func (o *Orchestrator) Approve(ctx context.Context, requestID string) (*store.Request, error) {
	request, tasks, err := o.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ValidateTransition(request.Status, store.StatusPublished, tasks); err != nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "approve", err.Error(), nil)
	}
	if err := o.transition(ctx, request, store.StatusPublished); err != nil {
		return nil, err
	}
	if err := o.notifier.NotifyPublished(ctx, request); err != nil {
		o.logger.Warn("publish notification failed", logging.Args(logging.Error(err))...)
	}
	return request, nil
}

// Cancel moves a non-terminal request to cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) (*store.Request, error) {
	request, tasks, err := o.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ValidateTransition(request.Status, store.StatusCancelled, tasks); err != nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "cancel", err.Error(), nil)
	}
	if err := o.transition(ctx, request, store.StatusCancelled); err != nil {
		return nil, err
	}
	return request, nil
}

// Rollback moves a request one stage backwards and resets the tasks gating
// the target stage so that stage's work runs again.
func (o *Orchestrator) Rollback(ctx context.Context, requestID string) (*store.Request, error) {
	request, tasks, err := o.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	previous, ok := lifecycle.PreviousStatus(request.Status)
	if !ok {
		return nil, services.Wrap(
			services.ErrValidation, "orchestrator", "rollback",
			fmt.Sprintf("status %s has no rollback edge", request.Status), nil)
	}

	reset := make(map[store.AgentRole]struct{})
	for _, role := range lifecycle.RequiredRoles(previous) {
		reset[role] = struct{}{}
	}
	for _, task := range tasks {
		if _, ok := reset[task.AgentRole]; !ok {
			continue
		}
		task.Status = store.TaskPending
		task.OutputData = nil
		task.OutputURL = ""
		task.ErrorMessage = ""
		task.CorrelationID = ""
		task.RetryCount = 0
		task.NextRetryAt = nil
		task.StartedAt = nil
		task.CompletedAt = nil
		if err := o.store.UpdateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("reset task %s: %w", task.TaskKey, err)
		}
	}
	if err := o.transition(ctx, request, previous); err != nil {
		return nil, err
	}
	return request, nil
}

// RetryTask manually requeues a failed task with a fresh retry budget.
func (o *Orchestrator) RetryTask(ctx context.Context, taskID string) (*store.Task, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(
			services.ErrValidation, "orchestrator", "retry task",
			fmt.Sprintf("task %s does not exist", taskID), nil)
	}
	if task.Status != store.TaskFailed {
		return nil, services.Wrap(
			services.ErrValidation, "orchestrator", "retry task",
			fmt.Sprintf("task %s is %s, only failed tasks can be retried", task.TaskKey, task.Status), nil)
	}
	task.Status = store.TaskPending
	task.ErrorMessage = ""
	task.CorrelationID = ""
	task.RetryCount = 0
	task.NextRetryAt = nil
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("requeue task: %w", err)
	}
	return task, nil
}

// ResolveDispatch applies an engine callback to its dispatched task and
// resumes processing for the request. Unknown correlation ids are rejected;
// repeated callbacks for an already-settled task are ignored.
func (o *Orchestrator) ResolveDispatch(ctx context.Context, cb engine.Callback) (*Summary, error) {
	task, err := o.store.TaskByCorrelation(ctx, cb.CorrelationID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(
			services.ErrValidation, "orchestrator", "resolve dispatch",
			fmt.Sprintf("no task for correlation id %q", cb.CorrelationID), nil)
	}
	if task.Status != store.TaskInProgress {
		o.logger.Info("ignoring duplicate callback", logging.Args(
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldCorrelationID, cb.CorrelationID),
		)...)
		return &Summary{RequestID: task.RequestID, Skipped: true}, nil
	}

	request, err := o.store.GetRequest(ctx, task.RequestID)
	if err != nil {
		return nil, err
	}

	ctx = services.WithCorrelationID(ctx, cb.CorrelationID)
	if cb.Status == engine.StatusCompleted {
		if _, err := o.runner.Complete(ctx, task, cb.Output, cb.OutputURL); err != nil {
			return nil, err
		}
	} else {
		outcome, err := o.runner.Fail(ctx, task, callbackError(cb))
		if err != nil {
			return nil, err
		}
		if _, err := o.handleFailure(ctx, request, outcome); err != nil {
			return nil, err
		}
	}

	return o.ProcessRequest(ctx, task.RequestID)
}

func callbackError(cb engine.Callback) error {
	marker := services.ErrExecutionFailed
	switch services.Code(cb.ErrorCode) {
	case services.CodeUnavailable:
		marker = services.ErrUnavailable
	case services.CodeException:
		marker = services.ErrException
	case services.CodeValidation:
		marker = services.ErrValidation
	}
	message := cb.ErrorMessage
	if message == "" {
		message = "engine reported execution failure"
	}
	return services.Wrap(marker, "engine", "callback", message, nil)
}

func (o *Orchestrator) load(ctx context.Context, requestID string) (*store.Request, []*store.Task, error) {
	request, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if request == nil {
		return nil, nil, services.Wrap(
			services.ErrValidation, "orchestrator", "load",
			fmt.Sprintf("request %s does not exist", requestID), nil)
	}
	tasks, err := o.store.TasksForRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	return request, tasks, nil
}
