package agent

import (
	"context"

	"github.com/google/uuid"

	"loom/internal/services"
	"loom/internal/services/engine"
	"loom/internal/store"
)

// Invocation carries everything an adapter needs to execute one task.
type Invocation struct {
	Request *store.Request
	Task    *store.Task
	// DependencyOutputs holds the output data of completed upstream tasks,
	// keyed by task key.
	DependencyOutputs map[string]map[string]any
}

// Result is a successful adapter execution. Async results carry a correlation
// id and resolve later through an engine callback.
type Result struct {
	Async         bool
	CorrelationID string
	Output        map[string]any
	OutputURL     string
}

// Adapter executes tasks for one capability role against some backing
// dependency.
type Adapter interface {
	// Name identifies the backing dependency for circuit-breaker scoping.
	Name() string
	Role() store.AgentRole
	Execute(ctx context.Context, inv Invocation) (*Result, error)
}

// EngineAdapter executes a capability role by dispatching the mapped workflow
// on the automation engine.
type EngineAdapter struct {
	role   store.AgentRole
	client *engine.Client
}

// NewEngineAdapter binds a role to the engine client.
func NewEngineAdapter(role store.AgentRole, client *engine.Client) *EngineAdapter {
	return &EngineAdapter{role: role, client: client}
}

func (a *EngineAdapter) Name() string { return "engine" }

func (a *EngineAdapter) Role() store.AgentRole { return a.role }

// Execute dispatches the task's workflow. A "running" answer means the engine
// accepted the work and will report through the signed callback; the task
// stays in progress under the returned correlation id until then.
func (a *EngineAdapter) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	correlationID := uuid.NewString()
	payload := map[string]any{
		"title":        inv.Request.Title,
		"request_type": string(inv.Request.RequestType),
	}
	for key, value := range inv.Task.InputData {
		payload[key] = value
	}
	if len(inv.DependencyOutputs) > 0 {
		payload["dependencies"] = inv.DependencyOutputs
	}

	result, err := a.client.Dispatch(ctx, string(a.role), engine.DispatchRequest{
		RequestID:     inv.Request.ID,
		TaskID:        inv.Task.ID,
		TaskKey:       inv.Task.TaskKey,
		AgentRole:     string(a.role),
		CorrelationID: correlationID,
		Payload:       payload,
	})
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case engine.StatusCompleted:
		return &Result{Output: result.Output, OutputURL: result.OutputURL}, nil
	case engine.StatusFailed:
		return nil, services.Wrap(
			services.ErrExecutionFailed, "engine", string(a.role),
			"engine reported execution failure", nil)
	default:
		return &Result{Async: true, CorrelationID: correlationID}, nil
	}
}
