package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"loom/internal/logging"
	"loom/internal/services"
	"loom/internal/store"
)

// NewRequestInput is the caller-supplied portion of a content request.
type NewRequestInput struct {
	RequestType string
	Title       string
	Metadata    map[string]string
	// TaskInput is merged into every task's input data, carrying brief
	// details like audience or channel down to the agents.
	TaskInput map[string]any
}

// Service validates intake submissions and materializes the full task
// pipeline for the request's content type.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// New constructs the intake service.
func New(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: st, logger: logger.With(logging.String(logging.FieldComponent, "intake"))}
}

// CreateRequest persists a new request in intake status together with its
// complete task pipeline. Either both land or neither does.
func (s *Service) CreateRequest(ctx context.Context, input NewRequestInput) (*store.Request, []*store.Task, error) {
	requestType, ok := store.ParseRequestType(input.RequestType)
	if !ok {
		return nil, nil, services.Wrap(
			services.ErrValidation, "intake", "create request",
			fmt.Sprintf("unknown request type %q", input.RequestType), nil)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, nil, services.Wrap(
			services.ErrValidation, "intake", "create request", "title is required", nil)
	}

	request := &store.Request{
		ID:          uuid.NewString(),
		RequestType: requestType,
		Status:      store.StatusIntake,
		Title:       title,
		Metadata:    input.Metadata,
	}
	tasks := buildTasks(request, input.TaskInput)

	if err := s.store.CreateRequest(ctx, request); err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if err := s.store.InsertTasks(ctx, tasks); err != nil {
		// Roll the request back so a half-created pipeline never surfaces.
		if _, removeErr := s.store.RemoveRequest(ctx, request.ID); removeErr != nil {
			s.logger.Error("orphaned request after task insert failure", logging.Args(
				logging.String(logging.FieldRequestID, request.ID),
				logging.Error(removeErr),
			)...)
		}
		return nil, nil, fmt.Errorf("create request tasks: %w", err)
	}

	s.logger.Info("request created", logging.Args(
		logging.String(logging.FieldRequestID, request.ID),
		logging.String("request_type", string(requestType)),
		logging.Int("tasks", len(tasks)),
	)...)
	return request, tasks, nil
}

func buildTasks(request *store.Request, taskInput map[string]any) []*store.Task {
	plan := blueprints[request.RequestType]
	idByKey := make(map[string]string, len(plan))
	tasks := make([]*store.Task, 0, len(plan))

	for i, bp := range plan {
		id := uuid.NewString()
		idByKey[bp.Key] = id

		input := make(map[string]any, len(taskInput)+1)
		for k, v := range taskInput {
			input[k] = v
		}
		if bp.EstimatedSeconds > 0 {
			input["estimated_duration_seconds"] = bp.EstimatedSeconds
		}

		task := &store.Task{
			ID:        id,
			RequestID: request.ID,
			TaskKey:   bp.Key,
			TaskName:  bp.Name,
			AgentRole: bp.Role,
			Status:    store.TaskPending,
			Sequence:  i + 1,
			InputData: input,
		}
		for _, dep := range bp.DependsOn {
			task.DependsOn = append(task.DependsOn, idByKey[dep])
		}
		tasks = append(tasks, task)
	}
	return tasks
}
