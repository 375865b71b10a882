package timeline_test

import (
	"context"
	"testing"

	"loom/internal/store"
	"loom/internal/testsupport"
	"loom/internal/timeline"
)

func TestTaskEventRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	request := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusIntake)
	tasks := testsupport.SeedTasks(t, st, request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})

	rec := timeline.New(st, nil)
	rec.TaskEvent(context.Background(), tasks["video_production"], store.EventTaskStarted, "dispatching")
	rec.StatusChanged(context.Background(), request.ID, store.StatusIntake, store.StatusDraft)

	events, err := st.EventsForRequest(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("events for request: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != store.EventTaskStarted || events[0].AgentRole != store.RoleProducer {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].EventType != store.EventStatusChanged || events[1].Message != "intake -> draft" {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestRecorderToleratesStoreFailure(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec := timeline.New(st, nil)
	st.Close()

	// Must not panic; the failure is logged and swallowed.
	rec.TaskEvent(context.Background(), &store.Task{RequestID: "req", ID: "task"}, store.EventTaskFailed, "boom")
}
