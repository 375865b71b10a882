package progress_test

import (
	"testing"
	"time"

	"loom/internal/progress"
	"loom/internal/store"
)

func request(status store.RequestStatus) *store.Request {
	return &store.Request{ID: "req-1", RequestType: store.TypeVideoAd, Status: status}
}

func task(role store.AgentRole, status store.TaskStatus) *store.Task {
	return &store.Task{ID: string(role), RequestID: "req-1", TaskKey: string(role), AgentRole: role, Status: status}
}

func TestWeightedPercentFavorsLongTasks(t *testing.T) {
	// Weights: executive 5s, strategist 30s, producer 180s. Completing the
	// first two earns 35 of 215 seconds.
	tasks := []*store.Task{
		task(store.RoleExecutive, store.TaskCompleted),
		task(store.RoleStrategist, store.TaskCompleted),
		task(store.RoleProducer, store.TaskPending),
	}
	snap := progress.Compute(request(store.StatusDraft), tasks)
	if snap.Percent != 16 {
		t.Fatalf("Percent = %d, want 16", snap.Percent)
	}
	if snap.TasksCompleted != 2 || snap.TasksPending != 1 {
		t.Fatalf("unexpected counts %+v", snap)
	}
}

func TestInProgressTaskEarnsHalfCreditAndPinsPhase(t *testing.T) {
	tasks := []*store.Task{
		task(store.RoleExecutive, store.TaskCompleted),
		task(store.RoleStrategist, store.TaskCompleted),
		task(store.RoleProducer, store.TaskInProgress),
	}
	snap := progress.Compute(request(store.StatusProduction), tasks)
	// 5 + 30 + 90 of 215 seconds.
	if snap.Percent != 58 {
		t.Fatalf("Percent = %d, want 58", snap.Percent)
	}
	if snap.Phase != store.StatusProduction {
		t.Fatalf("Phase = %s, want production", snap.Phase)
	}
}

func TestPhaseFollowsInProgressRole(t *testing.T) {
	tasks := []*store.Task{
		task(store.RoleCopywriter, store.TaskInProgress),
	}
	snap := progress.Compute(request(store.StatusDraft), tasks)
	if snap.Phase != store.StatusDraft {
		t.Fatalf("Phase = %s, want draft", snap.Phase)
	}

	tasks[0].AgentRole = store.RoleQA
	snap = progress.Compute(request(store.StatusQA), tasks)
	if snap.Phase != store.StatusQA {
		t.Fatalf("Phase = %s, want qa", snap.Phase)
	}
}

func TestPublishedRequestReportsCompleteWithNoEstimate(t *testing.T) {
	tasks := []*store.Task{
		task(store.RoleExecutive, store.TaskCompleted),
		task(store.RoleProducer, store.TaskCompleted),
	}
	snap := progress.Compute(request(store.StatusPublished), tasks)
	if snap.Percent != 100 {
		t.Fatalf("Percent = %d, want 100", snap.Percent)
	}
	if snap.EstimatedSecondsRemaining != nil {
		t.Fatalf("published request must not estimate remaining time, got %v", *snap.EstimatedSecondsRemaining)
	}
}

func TestEstimateUsesStaticWeightsWithoutObservations(t *testing.T) {
	tasks := []*store.Task{
		task(store.RoleExecutive, store.TaskCompleted),
		task(store.RoleProducer, store.TaskPending),
	}
	snap := progress.Compute(request(store.StatusDraft), tasks)
	if snap.EstimatedSecondsRemaining == nil {
		t.Fatal("expected a remaining estimate")
	}
	if got := *snap.EstimatedSecondsRemaining; got != 180 {
		t.Fatalf("estimate = %v, want 180", got)
	}
}

func TestEstimateScalesWithObservedThroughput(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Executive estimated at 5s but took 10s: everything runs at half speed.
	completed := started.Add(10 * time.Second)
	slow := task(store.RoleExecutive, store.TaskCompleted)
	slow.StartedAt = &started
	slow.CompletedAt = &completed

	tasks := []*store.Task{
		slow,
		task(store.RoleProducer, store.TaskPending),
	}
	snap := progress.Compute(request(store.StatusDraft), tasks)
	if snap.EstimatedSecondsRemaining == nil {
		t.Fatal("expected a remaining estimate")
	}
	if got := *snap.EstimatedSecondsRemaining; got != 360 {
		t.Fatalf("estimate = %v, want 360", got)
	}
}

func TestExplicitDurationOverrideWins(t *testing.T) {
	custom := task(store.RoleProducer, store.TaskPending)
	custom.InputData = map[string]any{"estimated_duration_seconds": float64(600)}
	tasks := []*store.Task{
		task(store.RoleExecutive, store.TaskCompleted),
		custom,
	}
	snap := progress.Compute(request(store.StatusDraft), tasks)
	// 5 of 605 seconds earned, rounded up.
	if snap.Percent != 1 {
		t.Fatalf("Percent = %d, want 1", snap.Percent)
	}
	if got := *snap.EstimatedSecondsRemaining; got != 600 {
		t.Fatalf("estimate = %v, want 600", got)
	}
}

func TestPercentRoundsToNearest(t *testing.T) {
	done := task(store.RoleProducer, store.TaskCompleted)
	done.InputData = map[string]any{"estimated_duration_seconds": float64(2)}
	pending := task(store.RoleCopywriter, store.TaskPending)
	pending.InputData = map[string]any{"estimated_duration_seconds": float64(1)}

	snap := progress.Compute(request(store.StatusDraft), []*store.Task{done, pending})
	// 2 of 3 seconds earned: 66.67 rounds to 67, not down to 66.
	if snap.Percent != 67 {
		t.Fatalf("Percent = %d, want 67", snap.Percent)
	}
}

func TestEmptyTaskSetReportsZeroPercent(t *testing.T) {
	for _, status := range []store.RequestStatus{store.StatusIntake, store.StatusQA} {
		snap := progress.Compute(request(status), nil)
		if snap.Percent != 0 {
			t.Fatalf("Percent = %d for %s with no tasks, want 0", snap.Percent, status)
		}
	}
}
