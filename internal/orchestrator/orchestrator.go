package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"loom/internal/agent"
	"loom/internal/lifecycle"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/retry"
	"loom/internal/services"
	"loom/internal/store"
	"loom/internal/timeline"
)

// Summary reports what one processing pass did for a request.
type Summary struct {
	RequestID   string
	FinalStatus store.RequestStatus
	TasksRun    int
	// Skipped means another pass already held the request; nothing was done.
	Skipped bool
	// Waiting means a task was dispatched and the pass stopped until the
	// engine callback arrives.
	Waiting bool
	// RetryScheduled means a task failed and a retry is on the clock.
	RetryScheduled bool
	NextRetryAt    *time.Time
	// Stalled means a task failed terminally; the request needs an operator.
	Stalled   bool
	BlockedOn string
}

// Orchestrator drives requests through their lifecycle: it runs eligible
// tasks, schedules retries, and advances statuses as stages complete.
type Orchestrator struct {
	store    *store.Store
	runner   *agent.Runner
	policy   retry.Policy
	recorder *timeline.Recorder
	notifier notifications.Service
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	now func() time.Time
}

// New constructs an orchestrator.
func New(st *store.Store, runner *agent.Runner, policy retry.Policy, recorder *timeline.Recorder, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Orchestrator{
		store:    st,
		runner:   runner,
		policy:   policy,
		recorder: recorder,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// ProcessRequest runs one processing pass over a request. Concurrent passes
// for the same request collapse into one: later callers get a skipped
// summary. The pass loops until the request is waiting on a callback, a
// retry timer, operator action, or a terminal status.
func (o *Orchestrator) ProcessRequest(ctx context.Context, requestID string) (*Summary, error) {
	if !o.tryAcquire(requestID) {
		return &Summary{RequestID: requestID, Skipped: true}, nil
	}
	defer o.release(requestID)

	ctx = services.WithRequestID(ctx, requestID)
	summary := &Summary{RequestID: requestID}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		request, err := o.store.GetRequest(ctx, requestID)
		if err != nil {
			return summary, err
		}
		if request == nil {
			return summary, services.Wrap(
				services.ErrValidation, "orchestrator", "process",
				fmt.Sprintf("request %s does not exist", requestID), nil)
		}
		summary.FinalStatus = request.Status
		if request.Status.IsTerminal() {
			return summary, nil
		}

		tasks, err := o.store.TasksForRequest(ctx, requestID)
		if err != nil {
			return summary, err
		}

		task, nextRetry := o.nextRunnable(request, tasks)
		if task == nil {
			if nextRetry != nil {
				summary.RetryScheduled = true
				summary.NextRetryAt = nextRetry
				return summary, nil
			}
			advanced, reason, err := o.tryAdvance(ctx, request, tasks)
			if err != nil {
				return summary, err
			}
			if advanced {
				continue
			}
			if stalled := firstStalled(tasks); stalled != nil {
				summary.Stalled = true
				summary.BlockedOn = fmt.Sprintf("%s failed: %s", stalled.TaskName, stalled.ErrorMessage)
				return summary, nil
			}
			summary.BlockedOn = reason
			return summary, nil
		}

		outcome, err := o.runner.Run(ctx, request, task)
		if err != nil {
			return summary, err
		}
		summary.TasksRun++

		switch outcome.State {
		case agent.OutcomeCompleted:
			continue
		case agent.OutcomeWaiting:
			summary.Waiting = true
			return summary, nil
		case agent.OutcomeFailed:
			scheduled, err := o.handleFailure(ctx, request, outcome)
			if err != nil {
				return summary, err
			}
			if scheduled {
				if outcome.Task.NextRetryAt != nil && !o.now().Before(*outcome.Task.NextRetryAt) {
					// Zero backoff: the retry is already due.
					continue
				}
				summary.RetryScheduled = true
				summary.NextRetryAt = outcome.Task.NextRetryAt
			} else {
				summary.Stalled = true
				summary.BlockedOn = fmt.Sprintf("%s failed: %s", outcome.Task.TaskName, outcome.Task.ErrorMessage)
			}
			return summary, nil
		}
	}
}

// ProcessActive runs a pass over every non-terminal request, returning the
// earliest pending retry time across all of them.
func (o *Orchestrator) ProcessActive(ctx context.Context) (*time.Time, error) {
	requests, err := o.store.ListRequests(ctx,
		store.StatusIntake, store.StatusDraft, store.StatusProduction, store.StatusQA)
	if err != nil {
		return nil, err
	}

	var earliest *time.Time
	for _, request := range requests {
		summary, err := o.ProcessRequest(ctx, request.ID)
		if err != nil {
			o.logger.Error("processing pass failed", logging.Args(
				logging.String(logging.FieldRequestID, request.ID),
				logging.Error(err),
			)...)
			continue
		}
		if summary.NextRetryAt != nil && (earliest == nil || summary.NextRetryAt.Before(*earliest)) {
			earliest = summary.NextRetryAt
		}
	}
	return earliest, nil
}

// nextRunnable picks the lowest-sequence task eligible to run now: pending
// with all dependencies completed, or failed with a due retry. The second
// return value carries the earliest not-yet-due retry time, if any.
func (o *Orchestrator) nextRunnable(request *store.Request, tasks []*store.Task) (*store.Task, *time.Time) {
	completed := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if task.Status == store.TaskCompleted {
			completed[task.ID] = struct{}{}
		}
	}

	now := o.now()
	maxRank := statusRank(request.Status)
	var runnable []*store.Task
	var nextRetry *time.Time

	for _, task := range tasks {
		if statusRank(phaseFor(task.AgentRole)) > maxRank {
			continue
		}
		switch task.Status {
		case store.TaskPending:
			if task.DependsOnAllCompleted(completed) {
				runnable = append(runnable, task)
			}
		case store.TaskFailed:
			if task.NextRetryAt == nil {
				continue
			}
			if now.Before(*task.NextRetryAt) {
				if nextRetry == nil || task.NextRetryAt.Before(*nextRetry) {
					nextRetry = task.NextRetryAt
				}
				continue
			}
			if task.DependsOnAllCompleted(completed) {
				runnable = append(runnable, task)
			}
		}
	}

	if len(runnable) == 0 {
		return nil, nextRetry
	}
	sort.Slice(runnable, func(i, j int) bool { return runnable[i].Sequence < runnable[j].Sequence })
	return runnable[0], nextRetry
}

// handleFailure decides whether a failed task gets a retry. Retriable
// failures under budget are scheduled with jittered backoff; everything else
// is terminal and notifies the operator.
func (o *Orchestrator) handleFailure(ctx context.Context, request *store.Request, outcome *agent.Outcome) (bool, error) {
	task := outcome.Task

	if services.Retriable(outcome.Err) && !o.policy.Exhausted(task.RetryCount) {
		rc := o.policy.NewContext(task, services.Summary(outcome.Err))
		task.RetryCount++
		task.NextRetryAt = &rc.NextRetryAt
		if err := o.store.UpdateTask(ctx, task); err != nil {
			return false, fmt.Errorf("schedule retry: %w", err)
		}
		o.logger.Info("retry scheduled", logging.Args(
			logging.String(logging.FieldRequestID, request.ID),
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("detail", retry.FormatRetryLog(rc, o.policy.MaxRetries)),
		)...)
		return true, nil
	}

	task.NextRetryAt = nil
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return false, fmt.Errorf("mark terminal failure: %w", err)
	}
	reason := task.ErrorMessage
	if services.Retriable(outcome.Err) {
		reason = fmt.Sprintf("retries exhausted after %d attempts: %s", task.RetryCount, task.ErrorMessage)
	}
	o.logger.Warn("request stalled", logging.Args(
		logging.String(logging.FieldRequestID, request.ID),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("reason", reason),
	)...)
	if err := o.notifier.NotifyStalled(ctx, request, task.TaskName, reason); err != nil {
		o.logger.Warn("stall notification failed", logging.Args(logging.Error(err))...)
	}
	return false, nil
}

// tryAdvance moves the request forward when its stage gate is satisfied and
// the stage auto-advances. qa never auto-advances; publishing requires an
// explicit approval.
func (o *Orchestrator) tryAdvance(ctx context.Context, request *store.Request, tasks []*store.Task) (bool, string, error) {
	if !lifecycle.ShouldAutoAdvance(request.Status) {
		return false, fmt.Sprintf("status %s requires operator action", request.Status), nil
	}
	ok, reason := lifecycle.CanAdvanceToNext(request.Status, tasks)
	if !ok {
		return false, reason, nil
	}
	next, _ := lifecycle.NextStatus(request.Status)
	if err := o.transition(ctx, request, next); err != nil {
		return false, "", err
	}
	return true, "", nil
}

func (o *Orchestrator) transition(ctx context.Context, request *store.Request, to store.RequestStatus) error {
	from := request.Status
	if err := o.store.UpdateRequestStatus(ctx, request.ID, to); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	request.Status = to
	o.recorder.StatusChanged(ctx, request.ID, from, to)
	o.logger.Info("status changed", logging.Args(
		logging.String(logging.FieldRequestID, request.ID),
		logging.String(logging.FieldStatus, string(to)),
		logging.String("from", string(from)),
	)...)
	return nil
}

func (o *Orchestrator) tryAcquire(requestID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[requestID]; busy {
		return false
	}
	o.inFlight[requestID] = struct{}{}
	return true
}

func (o *Orchestrator) release(requestID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, requestID)
}

func firstStalled(tasks []*store.Task) *store.Task {
	for _, task := range tasks {
		if task.Status == store.TaskFailed && task.NextRetryAt == nil {
			return task
		}
	}
	return nil
}

var phaseRank = map[store.RequestStatus]int{
	store.StatusIntake:     0,
	store.StatusDraft:      1,
	store.StatusProduction: 2,
	store.StatusQA:         3,
	store.StatusPublished:  4,
}

func statusRank(status store.RequestStatus) int {
	return phaseRank[status]
}

func phaseFor(role store.AgentRole) store.RequestStatus {
	switch role {
	case store.RoleExecutive, store.RoleTaskPlanner:
		return store.StatusIntake
	case store.RoleStrategist, store.RoleCopywriter:
		return store.StatusDraft
	case store.RoleProducer:
		return store.StatusProduction
	case store.RoleQA:
		return store.StatusQA
	default:
		return store.StatusIntake
	}
}
