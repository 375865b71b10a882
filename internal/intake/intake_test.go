package intake_test

import (
	"context"
	"testing"

	"loom/internal/intake"
	"loom/internal/services"
	"loom/internal/store"
	"loom/internal/testsupport"
)

func TestCreateRequestMaterializesPipeline(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc := intake.New(st, nil)

	request, tasks, err := svc.CreateRequest(context.Background(), intake.NewRequestInput{
		RequestType: "video_ad",
		Title:       "Spring launch spot",
		Metadata:    map[string]string{"brand": "acme"},
		TaskInput:   map[string]any{"audience": "18-35"},
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if request.Status != store.StatusIntake {
		t.Fatalf("new request status = %s, want intake", request.Status)
	}
	if len(tasks) != 6 {
		t.Fatalf("expected 6 tasks, got %d", len(tasks))
	}

	persisted, err := st.TasksForRequest(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("TasksForRequest: %v", err)
	}
	if len(persisted) != 6 {
		t.Fatalf("expected 6 persisted tasks, got %d", len(persisted))
	}

	byKey := make(map[string]*store.Task)
	for _, task := range persisted {
		byKey[task.TaskKey] = task
		if task.Status != store.TaskPending {
			t.Fatalf("task %s status = %s, want pending", task.TaskKey, task.Status)
		}
		if task.InputData["audience"] != "18-35" {
			t.Fatalf("task %s missing shared input: %v", task.TaskKey, task.InputData)
		}
	}

	production := byKey["video_production"]
	if production == nil || production.AgentRole != store.RoleProducer {
		t.Fatalf("missing producer step: %+v", production)
	}
	if len(production.DependsOn) != 2 {
		t.Fatalf("video_production deps = %v, want strategy and copy", production.DependsOn)
	}
	depIDs := map[string]struct{}{
		byKey["brand_strategy"].ID: {},
		byKey["ad_copy"].ID:        {},
	}
	for _, dep := range production.DependsOn {
		if _, ok := depIDs[dep]; !ok {
			t.Fatalf("video_production depends on unexpected id %s", dep)
		}
	}
}

func TestEveryBlueprintGatesEachLifecycleStage(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc := intake.New(st, nil)

	for _, requestType := range store.AllRequestTypes() {
		_, tasks, err := svc.CreateRequest(context.Background(), intake.NewRequestInput{
			RequestType: string(requestType),
			Title:       "gate check",
		})
		if err != nil {
			t.Fatalf("CreateRequest(%s): %v", requestType, err)
		}
		roles := make(map[store.AgentRole]bool)
		for _, task := range tasks {
			roles[task.AgentRole] = true
		}
		for _, required := range []store.AgentRole{
			store.RoleStrategist, store.RoleCopywriter, store.RoleProducer, store.RoleQA,
		} {
			if !roles[required] {
				t.Fatalf("%s pipeline has no %s task", requestType, required)
			}
		}
	}
}

func TestCreateRequestValidation(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc := intake.New(st, nil)

	_, _, err := svc.CreateRequest(context.Background(), intake.NewRequestInput{
		RequestType: "podcast",
		Title:       "nope",
	})
	if services.CodeOf(err) != services.CodeValidation {
		t.Fatalf("unknown type should be VALIDATION_ERROR, got %v", err)
	}

	_, _, err = svc.CreateRequest(context.Background(), intake.NewRequestInput{
		RequestType: "video_ad",
		Title:       "   ",
	})
	if services.CodeOf(err) != services.CodeValidation {
		t.Fatalf("blank title should be VALIDATION_ERROR, got %v", err)
	}

	requests, err := st.ListRequests(context.Background())
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("invalid submissions must not persist, found %d", len(requests))
	}
}
