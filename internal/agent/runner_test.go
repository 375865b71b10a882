package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loom/internal/agent"
	"loom/internal/breaker"
	"loom/internal/services"
	"loom/internal/store"
	"loom/internal/testsupport"
	"loom/internal/timeline"
)

type stubAdapter struct {
	name    string
	role    store.AgentRole
	result  *agent.Result
	err     error
	panics  bool
	calls   int
	lastInv agent.Invocation
}

func (s *stubAdapter) Name() string          { return s.name }
func (s *stubAdapter) Role() store.AgentRole { return s.role }

func (s *stubAdapter) Execute(_ context.Context, inv agent.Invocation) (*agent.Result, error) {
	s.calls++
	s.lastInv = inv
	if s.panics {
		panic("adapter blew up")
	}
	return s.result, s.err
}

type fixture struct {
	store   *store.Store
	runner  *agent.Runner
	request *store.Request
}

func newFixture(t *testing.T, qaAutoApprove bool) *fixture {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	runner := agent.NewRunner(st, breaker.NewRegistry(breaker.DefaultSettings()), timeline.New(st, nil), nil, qaAutoApprove)
	request := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusProduction)
	return &fixture{store: st, runner: runner, request: request}
}

func TestRunSystemRoleAutoCompletes(t *testing.T) {
	f := newFixture(t, true)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "plan_intake", Role: store.RoleExecutive},
	})

	outcome, err := f.runner.Run(context.Background(), f.request, tasks["plan_intake"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeCompleted {
		t.Fatalf("state = %s, want completed", outcome.State)
	}

	persisted, err := f.store.GetTask(context.Background(), tasks["plan_intake"].ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if persisted.Status != store.TaskCompleted || persisted.CompletedAt == nil || persisted.StartedAt == nil {
		t.Fatalf("unexpected persisted task %+v", persisted)
	}
	if persisted.OutputData["auto_completed"] != true {
		t.Fatalf("expected auto_completed output, got %v", persisted.OutputData)
	}
}

func TestRunQAAutoApproves(t *testing.T) {
	f := newFixture(t, true)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "final_review", Role: store.RoleQA},
	})

	outcome, err := f.runner.Run(context.Background(), f.request, tasks["final_review"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeCompleted {
		t.Fatalf("state = %s, want completed", outcome.State)
	}
	if outcome.Task.OutputData["auto_approved"] != true {
		t.Fatalf("expected auto_approved output, got %v", outcome.Task.OutputData)
	}
}

func TestRunUnregisteredRoleFailsWithoutRetry(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})

	outcome, err := f.runner.Run(context.Background(), f.request, tasks["video_production"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeFailed {
		t.Fatalf("state = %s, want failed", outcome.State)
	}
	if services.CodeOf(outcome.Err) != services.CodeUnsupportedAgent {
		t.Fatalf("expected UNSUPPORTED_AGENT, got %v", outcome.Err)
	}
	if services.Retriable(outcome.Err) {
		t.Fatal("missing adapter must not be retriable")
	}
}

func TestRunInlineCompletionPersistsOutput(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})
	adapter := &stubAdapter{
		name: "engine",
		role: store.RoleProducer,
		result: &agent.Result{
			Output:    map[string]any{"render": "done"},
			OutputURL: "https://cdn.example.com/video.mp4",
		},
	}
	f.runner.Register(adapter)

	outcome, err := f.runner.Run(context.Background(), f.request, tasks["video_production"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeCompleted {
		t.Fatalf("state = %s, want completed", outcome.State)
	}
	persisted, _ := f.store.GetTask(context.Background(), tasks["video_production"].ID)
	if persisted.OutputURL != "https://cdn.example.com/video.mp4" {
		t.Fatalf("output url not persisted: %+v", persisted)
	}
	if adapter.calls != 1 {
		t.Fatalf("adapter called %d times", adapter.calls)
	}
}

func TestRunAsyncDispatchLeavesTaskInProgress(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})
	f.runner.Register(&stubAdapter{
		name:   "engine",
		role:   store.RoleProducer,
		result: &agent.Result{Async: true, CorrelationID: "corr-42"},
	})

	outcome, err := f.runner.Run(context.Background(), f.request, tasks["video_production"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeWaiting {
		t.Fatalf("state = %s, want waiting", outcome.State)
	}

	persisted, _ := f.store.GetTask(context.Background(), tasks["video_production"].ID)
	if persisted.Status != store.TaskInProgress || persisted.CorrelationID != "corr-42" {
		t.Fatalf("unexpected persisted task %+v", persisted)
	}
	found, err := f.store.TaskByCorrelation(context.Background(), "corr-42")
	if err != nil || found == nil || found.ID != persisted.ID {
		t.Fatalf("correlation lookup failed: %v %v", found, err)
	}
}

func TestRunAdapterPanicBecomesRetriableException(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})
	f.runner.Register(&stubAdapter{name: "engine", role: store.RoleProducer, panics: true})

	outcome, err := f.runner.Run(context.Background(), f.request, tasks["video_production"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeFailed {
		t.Fatalf("state = %s, want failed", outcome.State)
	}
	if services.CodeOf(outcome.Err) != services.CodeException {
		t.Fatalf("expected AGENT_EXCEPTION, got %v", outcome.Err)
	}
	if !services.Retriable(outcome.Err) {
		t.Fatal("adapter panics must be retriable")
	}
}

func TestRunGathersCompletedDependencyOutputs(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "brand_strategy", Role: store.RoleStrategist, Status: store.TaskCompleted},
		{Key: "ad_copy", Role: store.RoleCopywriter, Status: store.TaskCompleted},
		{Key: "video_production", Role: store.RoleProducer, DependsOn: []string{"brand_strategy", "ad_copy"}},
	})
	strategy := tasks["brand_strategy"]
	strategy.OutputData = map[string]any{"tone": "bold"}
	if err := f.store.UpdateTask(context.Background(), strategy); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	adapter := &stubAdapter{name: "engine", role: store.RoleProducer, result: &agent.Result{Output: map[string]any{}}}
	f.runner.Register(adapter)

	if _, err := f.runner.Run(context.Background(), f.request, tasks["video_production"]); err != nil {
		t.Fatalf("Run: %v", err)
	}
	deps := adapter.lastInv.DependencyOutputs
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependency outputs, got %d", len(deps))
	}
	if deps["brand_strategy"]["tone"] != "bold" {
		t.Fatalf("dependency output missing: %v", deps)
	}
}

func TestRunOmitsIncompleteDependencyOutputs(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "brand_strategy", Role: store.RoleStrategist, Status: store.TaskCompleted},
		{Key: "ad_copy", Role: store.RoleCopywriter},
		{Key: "video_production", Role: store.RoleProducer, DependsOn: []string{"brand_strategy", "ad_copy"}},
	})
	adapter := &stubAdapter{name: "engine", role: store.RoleProducer, result: &agent.Result{Output: map[string]any{}}}
	f.runner.Register(adapter)

	// Runnability gating belongs to the orchestrator; the runner just skips
	// outputs from dependencies that have not completed.
	outcome, err := f.runner.Run(context.Background(), f.request, tasks["video_production"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeCompleted {
		t.Fatalf("state = %s, want completed", outcome.State)
	}
	deps := adapter.lastInv.DependencyOutputs
	if len(deps) != 1 {
		t.Fatalf("expected 1 dependency output, got %v", deps)
	}
	if _, ok := deps["ad_copy"]; ok {
		t.Fatal("incomplete dependency must be omitted")
	}
}

func TestRunMissingDependencyIsValidationFailure(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})
	task := tasks["video_production"]
	task.DependsOn = []string{"no-such-task"}
	adapter := &stubAdapter{name: "engine", role: store.RoleProducer}
	f.runner.Register(adapter)

	outcome, err := f.runner.Run(context.Background(), f.request, task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != agent.OutcomeFailed || services.CodeOf(outcome.Err) != services.CodeValidation {
		t.Fatalf("expected validation failure, got %+v", outcome)
	}
	if adapter.calls != 0 {
		t.Fatal("adapter must not run with a dangling dependency id")
	}
}

func TestBreakerOpensAfterRepeatedAdapterFailures(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	registry := breaker.NewRegistry(breaker.Settings{Threshold: 2, Cooldown: time.Minute})
	runner := agent.NewRunner(st, registry, timeline.New(st, nil), nil, false)
	request := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusProduction)
	tasks := testsupport.SeedTasks(t, st, request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})
	adapter := &stubAdapter{name: "engine", role: store.RoleProducer, err: errors.New("engine down")}
	runner.Register(adapter)

	for i := 0; i < 2; i++ {
		outcome, err := runner.Run(context.Background(), request, tasks["video_production"])
		if err != nil || outcome.State != agent.OutcomeFailed {
			t.Fatalf("run %d: %+v %v", i, outcome, err)
		}
	}
	if adapter.calls != 2 {
		t.Fatalf("adapter calls = %d, want 2", adapter.calls)
	}

	// Breaker is open now; the adapter must not be invoked again.
	outcome, err := runner.Run(context.Background(), request, tasks["video_production"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if adapter.calls != 2 {
		t.Fatal("open breaker still invoked the adapter")
	}
	if services.CodeOf(outcome.Err) != services.CodeUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE from open breaker, got %v", outcome.Err)
	}
}

func TestAdapterPanicCountsTowardBreaker(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	registry := breaker.NewRegistry(breaker.Settings{Threshold: 1, Cooldown: time.Minute})
	runner := agent.NewRunner(st, registry, timeline.New(st, nil), nil, false)
	request := testsupport.NewRequest(t, st, store.TypeVideoAd, store.StatusProduction)
	tasks := testsupport.SeedTasks(t, st, request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer},
	})
	adapter := &stubAdapter{name: "engine", role: store.RoleProducer, panics: true}
	runner.Register(adapter)

	outcome, err := runner.Run(context.Background(), request, tasks["video_production"])
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if services.CodeOf(outcome.Err) != services.CodeException {
		t.Fatalf("expected AGENT_EXCEPTION, got %v", outcome.Err)
	}

	// The panic counted as a breaker failure, so the next run is rejected
	// without reaching the adapter.
	outcome, err = runner.Run(context.Background(), request, tasks["video_production"])
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if adapter.calls != 1 {
		t.Fatalf("open breaker still invoked the adapter, calls=%d", adapter.calls)
	}
	if services.CodeOf(outcome.Err) != services.CodeUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", outcome.Err)
	}
}

func TestCompleteResolvesDispatchedTask(t *testing.T) {
	f := newFixture(t, false)
	tasks := testsupport.SeedTasks(t, f.store, f.request.ID, []testsupport.TaskSpec{
		{Key: "video_production", Role: store.RoleProducer, Status: store.TaskInProgress},
	})
	task := tasks["video_production"]

	outcome, err := f.runner.Complete(context.Background(), task,
		map[string]any{"render": "done"}, "https://cdn.example.com/v.mp4")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if outcome.State != agent.OutcomeCompleted {
		t.Fatalf("state = %s, want completed", outcome.State)
	}
	persisted, _ := f.store.GetTask(context.Background(), task.ID)
	if persisted.Status != store.TaskCompleted || persisted.OutputURL == "" {
		t.Fatalf("unexpected persisted task %+v", persisted)
	}
}
