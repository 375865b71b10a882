package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"loom/internal/config"
	"loom/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewRequest creates and persists a content request for tests.
func NewRequest(t testing.TB, st *store.Store, requestType store.RequestType, status store.RequestStatus) *store.Request {
	t.Helper()

	req := &store.Request{
		ID:          uuid.NewString(),
		RequestType: requestType,
		Status:      status,
		Title:       "test request",
		Metadata:    map[string]string{"tier": "standard"},
	}
	if err := st.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("store.CreateRequest: %v", err)
	}
	return req
}

// TaskSpec describes one task to seed for a request.
type TaskSpec struct {
	Key       string
	Role      store.AgentRole
	Status    store.TaskStatus
	DependsOn []string
	Input     map[string]any
}

// SeedTasks bulk-creates tasks for a request in spec order. Dependencies are
// given as task keys and resolved to ids. Returns the tasks keyed by task key.
func SeedTasks(t testing.TB, st *store.Store, requestID string, specs []TaskSpec) map[string]*store.Task {
	t.Helper()

	byKey := make(map[string]*store.Task, len(specs))
	tasks := make([]*store.Task, 0, len(specs))
	for i, spec := range specs {
		status := spec.Status
		if status == "" {
			status = store.TaskPending
		}
		task := &store.Task{
			ID:        uuid.NewString(),
			RequestID: requestID,
			TaskKey:   spec.Key,
			TaskName:  spec.Key,
			AgentRole: spec.Role,
			Status:    status,
			Sequence:  i + 1,
			InputData: spec.Input,
		}
		for _, dep := range spec.DependsOn {
			depTask, ok := byKey[dep]
			if !ok {
				t.Fatalf("task %s depends on unknown key %s", spec.Key, dep)
			}
			task.DependsOn = append(task.DependsOn, depTask.ID)
		}
		byKey[spec.Key] = task
		tasks = append(tasks, task)
	}
	if err := st.InsertTasks(context.Background(), tasks); err != nil {
		t.Fatalf("store.InsertTasks: %v", err)
	}
	return byKey
}
