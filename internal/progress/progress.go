package progress

import (
	"context"
	"math"
	"time"

	"loom/internal/agent"
	"loom/internal/store"
)

// Snapshot is a point-in-time view of how far a request has progressed.
type Snapshot struct {
	RequestID string
	Status    store.RequestStatus
	// Phase is the pipeline stage currently doing work. It matches the
	// request status unless an in-progress task pins a more specific stage.
	Phase   store.RequestStatus
	Percent int

	TasksTotal      int
	TasksCompleted  int
	TasksInProgress int
	TasksFailed     int
	TasksPending    int

	// EstimatedSecondsRemaining is nil once the request is complete or no
	// estimate can be made.
	EstimatedSecondsRemaining *float64
}

// Tracker computes progress snapshots from persisted task state.
type Tracker struct {
	store *store.Store
}

// New constructs a tracker over the given store.
func New(st *store.Store) *Tracker {
	return &Tracker{store: st}
}

// Snapshot loads the request's tasks and computes its progress.
func (t *Tracker) Snapshot(ctx context.Context, request *store.Request) (*Snapshot, error) {
	tasks, err := t.store.TasksForRequest(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return Compute(request, tasks), nil
}

// Compute derives a snapshot from an in-memory task set. Each task contributes
// its estimated duration as weight; completed tasks earn full credit and
// in-progress tasks half, so a long render moves the needle more than a quick
// planning step.
func Compute(request *store.Request, tasks []*store.Task) *Snapshot {
	snap := &Snapshot{
		RequestID:  request.ID,
		Status:     request.Status,
		Phase:      request.Status,
		TasksTotal: len(tasks),
	}

	// No tasks means no measurable work; callers wanting the coarse status
	// milestone use lifecycle.CompletionPercent instead.
	if len(tasks) == 0 {
		return snap
	}

	var totalWeight, earnedWeight, remainingWeight float64
	for _, task := range tasks {
		weight := agent.EstimatedDuration(task).Seconds()
		totalWeight += weight

		switch task.Status {
		case store.TaskCompleted:
			snap.TasksCompleted++
			earnedWeight += weight
		case store.TaskInProgress:
			snap.TasksInProgress++
			earnedWeight += weight / 2
			remainingWeight += weight / 2
			if phase, ok := phaseForRole(task.AgentRole); ok {
				snap.Phase = phase
			}
		case store.TaskFailed:
			snap.TasksFailed++
			remainingWeight += weight
		default:
			snap.TasksPending++
			remainingWeight += weight
		}
	}

	if totalWeight > 0 {
		snap.Percent = int(math.Round(earnedWeight / totalWeight * 100))
	}
	if request.Status == store.StatusPublished {
		snap.Percent = 100
	}

	if snap.Percent < 100 && remainingWeight > 0 && !request.Status.IsTerminal() {
		remaining := remainingWeight * throughputFactor(tasks)
		snap.EstimatedSecondsRemaining = &remaining
	}
	return snap
}

// throughputFactor scales estimates by the observed speed of completed tasks.
// With no observations the factor is 1, trusting the static estimates.
func throughputFactor(tasks []*store.Task) float64 {
	var observed, estimated time.Duration
	for _, task := range tasks {
		if task.Status != store.TaskCompleted {
			continue
		}
		actual, ok := task.Duration()
		if !ok || actual <= 0 {
			continue
		}
		observed += actual
		estimated += agent.EstimatedDuration(task)
	}
	if observed <= 0 || estimated <= 0 {
		return 1
	}
	factor := float64(observed) / float64(estimated)
	// Clamp so one outlier task cannot produce an absurd projection.
	if factor < 0.1 {
		return 0.1
	}
	if factor > 10 {
		return 10
	}
	return factor
}

func phaseForRole(role store.AgentRole) (store.RequestStatus, bool) {
	switch role {
	case store.RoleExecutive, store.RoleTaskPlanner:
		return store.StatusIntake, true
	case store.RoleStrategist, store.RoleCopywriter:
		return store.StatusDraft, true
	case store.RoleProducer:
		return store.StatusProduction, true
	case store.RoleQA:
		return store.StatusQA, true
	default:
		return "", false
	}
}
