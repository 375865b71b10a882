package store_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/store"
	"loom/internal/testsupport"
)

func TestCreateAndGetRequest(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusIntake)

	got, err := st.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got == nil {
		t.Fatal("expected request, got nil")
	}
	if got.RequestType != store.TypeVideoAd {
		t.Fatalf("unexpected request type: %s", got.RequestType)
	}
	if got.Metadata["tier"] != "standard" {
		t.Fatalf("metadata not round-tripped: %v", got.Metadata)
	}
}

func TestGetRequestMissing(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	got, err := st.GetRequest(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing request")
	}
}

func TestUpdateRequestStatus(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeSocialPost, store.StatusIntake)

	if err := st.UpdateRequestStatus(context.Background(), req.ID, store.StatusDraft); err != nil {
		t.Fatalf("UpdateRequestStatus: %v", err)
	}
	got, err := st.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != store.StatusDraft {
		t.Fatalf("status = %s, want draft", got.Status)
	}

	if err := st.UpdateRequestStatus(context.Background(), "missing", store.StatusDraft); err == nil {
		t.Fatal("expected error for unknown request")
	}
}

func TestTasksRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusIntake)

	byKey := testsupport.SeedTasks(t, st, req.ID, []testsupport.TaskSpec{
		{Key: "plan", Role: store.RoleExecutive, Status: store.TaskCompleted},
		{Key: "strategy", Role: store.RoleStrategist, DependsOn: []string{"plan"},
			Input: map[string]any{"estimated_duration_seconds": 42}},
	})

	tasks, err := st.TasksForRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("TasksForRequest: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].TaskKey != "plan" || tasks[1].TaskKey != "strategy" {
		t.Fatalf("tasks out of sequence: %s, %s", tasks[0].TaskKey, tasks[1].TaskKey)
	}
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != byKey["plan"].ID {
		t.Fatalf("depends_on not round-tripped: %v", tasks[1].DependsOn)
	}
	if weight, ok := tasks[1].EstimatedDurationSeconds(); !ok || weight != 42 {
		t.Fatalf("estimated duration = %v %v, want 42", weight, ok)
	}
}

func TestUpdateTaskPersistsRetryFields(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusProduction)
	byKey := testsupport.SeedTasks(t, st, req.ID, []testsupport.TaskSpec{
		{Key: "produce", Role: store.RoleProducer},
	})

	task := byKey["produce"]
	next := time.Now().UTC().Add(2 * time.Second)
	task.Status = store.TaskFailed
	task.ErrorMessage = "engine unavailable"
	task.RetryCount = 1
	task.NextRetryAt = &next
	if err := st.UpdateTask(context.Background(), task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	got, err := st.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if got.NextRetryAt == nil || !got.NextRetryAt.Equal(next.Truncate(time.Nanosecond)) {
		t.Fatalf("next retry = %v, want %v", got.NextRetryAt, next)
	}
	if got.ErrorMessage != "engine unavailable" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
}

func TestTaskByCorrelation(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusProduction)
	byKey := testsupport.SeedTasks(t, st, req.ID, []testsupport.TaskSpec{
		{Key: "produce", Role: store.RoleProducer, Status: store.TaskInProgress},
	})

	task := byKey["produce"]
	task.CorrelationID = "exec-123"
	if err := st.UpdateTask(context.Background(), task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	got, err := st.TaskByCorrelation(context.Background(), "exec-123")
	if err != nil {
		t.Fatalf("TaskByCorrelation: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("unexpected task: %+v", got)
	}

	none, err := st.TaskByCorrelation(context.Background(), "exec-999")
	if err != nil {
		t.Fatalf("TaskByCorrelation: %v", err)
	}
	if none != nil {
		t.Fatal("expected nil for unknown correlation id")
	}
}

func TestStaleDispatched(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusProduction)
	byKey := testsupport.SeedTasks(t, st, req.ID, []testsupport.TaskSpec{
		{Key: "produce", Role: store.RoleProducer, Status: store.TaskInProgress},
	})

	task := byKey["produce"]
	task.CorrelationID = "exec-1"
	if err := st.UpdateTask(context.Background(), task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	stale, err := st.StaleDispatched(context.Background(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("StaleDispatched: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale task, got %d", len(stale))
	}

	fresh, err := st.StaleDispatched(context.Background(), time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("StaleDispatched: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no stale tasks, got %d", len(fresh))
	}
}

func TestTimelineEvents(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeBlogArticle, store.StatusIntake)

	for _, eventType := range []string{store.EventTaskStarted, store.EventTaskCompleted} {
		if err := st.AppendEvent(context.Background(), &store.Event{
			RequestID: req.ID,
			TaskID:    "t1",
			TaskName:  "brand_strategy",
			AgentRole: store.RoleStrategist,
			EventType: eventType,
		}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := st.EventsForRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("EventsForRequest: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != store.EventTaskStarted {
		t.Fatalf("events out of order: %s", events[0].EventType)
	}
}

func TestRequestStats(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusIntake)
	testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusIntake)
	testsupport.NewRequest(t, st, store.TypeSocialPost, store.StatusPublished)

	stats, err := st.RequestStats(context.Background())
	if err != nil {
		t.Fatalf("RequestStats: %v", err)
	}
	if stats[store.StatusIntake] != 2 || stats[store.StatusPublished] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestRemoveRequestCascadesTasks(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusIntake)
	testsupport.SeedTasks(t, st, req.ID, []testsupport.TaskSpec{
		{Key: "plan", Role: store.RoleExecutive},
	})

	removed, err := st.RemoveRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("RemoveRequest: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	tasks, err := st.TasksForRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("TasksForRequest: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected cascade delete, got %d tasks", len(tasks))
	}
}
