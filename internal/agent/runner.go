package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/breaker"
	"loom/internal/logging"
	"loom/internal/services"
	"loom/internal/store"
	"loom/internal/timeline"
)

// OutcomeState classifies how a task run ended.
type OutcomeState string

const (
	// OutcomeCompleted means the task finished inline with output recorded.
	OutcomeCompleted OutcomeState = "completed"
	// OutcomeWaiting means the work was dispatched and the task stays in
	// progress until the engine callback arrives.
	OutcomeWaiting OutcomeState = "waiting"
	// OutcomeFailed means the task is marked failed; the orchestrator decides
	// whether a retry is scheduled.
	OutcomeFailed OutcomeState = "failed"
)

// Outcome reports the result of one Runner.Run. Err is set only for failed
// outcomes and carries the failure classification.
type Outcome struct {
	Task  *store.Task
	State OutcomeState
	Err   error
}

// Runner executes a single task through its capability adapter, persisting
// every state change. It never decides retries or lifecycle transitions; that
// is the orchestrator's job.
type Runner struct {
	store         *store.Store
	breakers      *breaker.Registry
	recorder      *timeline.Recorder
	logger        *slog.Logger
	qaAutoApprove bool
	adapters      map[store.AgentRole]Adapter
}

// NewRunner constructs a runner. Adapters are registered separately so mock
// and live wiring share the same construction path.
func NewRunner(st *store.Store, breakers *breaker.Registry, recorder *timeline.Recorder, logger *slog.Logger, qaAutoApprove bool) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:         st,
		breakers:      breakers,
		recorder:      recorder,
		logger:        logger.With(logging.String(logging.FieldComponent, "agent")),
		qaAutoApprove: qaAutoApprove,
		adapters:      make(map[store.AgentRole]Adapter),
	}
}

// Register installs an adapter for its role, replacing any previous one.
func (r *Runner) Register(adapter Adapter) {
	r.adapters[adapter.Role()] = adapter
}

// Run executes one task. The task is marked in progress before dispatch so a
// crash mid-execution is visible; the final state lands as completed, failed,
// or still in progress awaiting a callback.
func (r *Runner) Run(ctx context.Context, request *store.Request, task *store.Task) (*Outcome, error) {
	ctx = services.WithRequestID(ctx, request.ID)
	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithAgentRole(ctx, string(task.AgentRole))
	logger := logging.WithContext(ctx, r.logger)

	now := time.Now().UTC()
	task.Status = store.TaskInProgress
	task.StartedAt = &now
	task.ErrorMessage = ""
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("mark task in progress: %w", err)
	}
	r.recorder.TaskEvent(ctx, task, store.EventTaskStarted, "")
	logger.Info("task started")

	deps, err := r.dependencyOutputs(ctx, task)
	if err != nil {
		return r.fail(ctx, task, err)
	}

	result, err := r.dispatch(ctx, Invocation{Request: request, Task: task, DependencyOutputs: deps})
	if err != nil {
		return r.fail(ctx, task, err)
	}

	if result.Async {
		task.CorrelationID = result.CorrelationID
		if err := r.store.UpdateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("record dispatch correlation: %w", err)
		}
		r.recorder.TaskEvent(ctx, task, store.EventTaskWaiting, "awaiting engine callback")
		logger.Info("task dispatched", logging.Args(
			logging.String(logging.FieldCorrelationID, result.CorrelationID))...)
		return &Outcome{Task: task, State: OutcomeWaiting}, nil
	}

	return r.complete(ctx, task, result)
}

// Complete finishes an in-progress task with the given output. Used both for
// inline results and for engine callbacks resolving async dispatches.
func (r *Runner) Complete(ctx context.Context, task *store.Task, output map[string]any, outputURL string) (*Outcome, error) {
	return r.complete(ctx, task, &Result{Output: output, OutputURL: outputURL})
}

// Fail marks an in-progress task failed with the given classified error. Used
// for engine callbacks reporting execution failure.
func (r *Runner) Fail(ctx context.Context, task *store.Task, err error) (*Outcome, error) {
	return r.fail(ctx, task, err)
}

func (r *Runner) dispatch(ctx context.Context, inv Invocation) (result *Result, err error) {
	task := inv.Task

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = services.Wrap(
				services.ErrException, "agent", string(task.AgentRole),
				fmt.Sprintf("panic: %v", rec), nil)
		}
	}()

	if task.AgentRole.IsSystem() {
		return &Result{Output: map[string]any{"auto_completed": true}}, nil
	}
	if task.AgentRole == store.RoleQA && r.qaAutoApprove {
		return &Result{Output: map[string]any{"approved": true, "auto_approved": true}}, nil
	}

	adapter, ok := r.adapters[task.AgentRole]
	if !ok {
		return nil, services.Wrap(
			services.ErrUnsupportedAgent, "agent", "dispatch",
			fmt.Sprintf("no adapter registered for role %q", task.AgentRole), nil)
	}

	err = r.breakers.Get(adapter.Name()).Execute(ctx, func(ctx context.Context) error {
		result, err = adapter.Execute(ctx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) dependencyOutputs(ctx context.Context, task *store.Task) (map[string]map[string]any, error) {
	if len(task.DependsOn) == 0 {
		return nil, nil
	}
	siblings, err := r.store.TasksForRequest(ctx, task.RequestID)
	if err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, "agent", "load dependencies", "", err)
	}
	byID := make(map[string]*store.Task, len(siblings))
	for _, sibling := range siblings {
		byID[sibling.ID] = sibling
	}

	outputs := make(map[string]map[string]any, len(task.DependsOn))
	for _, depID := range task.DependsOn {
		dep, ok := byID[depID]
		if !ok {
			return nil, services.Wrap(
				services.ErrValidation, "agent", "load dependencies",
				fmt.Sprintf("dependency %s does not exist", depID), nil)
		}
		// Runnability gating is the orchestrator's job; an incomplete
		// dependency simply contributes no output here.
		if dep.Status != store.TaskCompleted {
			continue
		}
		outputs[dep.TaskKey] = dep.OutputData
	}
	return outputs, nil
}

func (r *Runner) complete(ctx context.Context, task *store.Task, result *Result) (*Outcome, error) {
	now := time.Now().UTC()
	task.Status = store.TaskCompleted
	task.CompletedAt = &now
	task.OutputData = result.Output
	if result.OutputURL != "" {
		task.OutputURL = result.OutputURL
	}
	task.ErrorMessage = ""
	task.NextRetryAt = nil
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("mark task completed: %w", err)
	}
	r.recorder.TaskEvent(ctx, task, store.EventTaskCompleted, "")
	logging.WithContext(ctx, r.logger).Info("task completed")
	return &Outcome{Task: task, State: OutcomeCompleted}, nil
}

func (r *Runner) fail(ctx context.Context, task *store.Task, taskErr error) (*Outcome, error) {
	task.Status = store.TaskFailed
	task.ErrorMessage = fmt.Sprintf("%s: %s", services.CodeOf(taskErr), services.Summary(taskErr))
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("mark task failed: %w", err)
	}
	r.recorder.TaskEvent(ctx, task, store.EventTaskFailed, task.ErrorMessage)
	logging.WithContext(ctx, r.logger).Warn("task failed", logging.Args(
		logging.String("code", string(services.CodeOf(taskErr))),
		logging.Error(taskErr),
	)...)
	return &Outcome{Task: task, State: OutcomeFailed, Err: taskErr}, nil
}
