package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"loom/internal/store"
)

// transitions is the fixed edge table for request statuses: the linear happy
// path, one rollback edge per production stage, and cancellation from any
// non-terminal state.
var transitions = map[store.RequestStatus][]store.RequestStatus{
	store.StatusIntake:     {store.StatusDraft, store.StatusCancelled},
	store.StatusDraft:      {store.StatusProduction, store.StatusCancelled},
	store.StatusProduction: {store.StatusQA, store.StatusDraft, store.StatusCancelled},
	store.StatusQA:         {store.StatusPublished, store.StatusProduction, store.StatusCancelled},
	store.StatusPublished:  {},
	store.StatusCancelled:  {},
}

var forwardNeighbor = map[store.RequestStatus]store.RequestStatus{
	store.StatusIntake:     store.StatusDraft,
	store.StatusDraft:      store.StatusProduction,
	store.StatusProduction: store.StatusQA,
	store.StatusQA:         store.StatusPublished,
}

var rollbackNeighbor = map[store.RequestStatus]store.RequestStatus{
	store.StatusProduction: store.StatusDraft,
	store.StatusQA:         store.StatusProduction,
}

// requiredRoles lists the agent roles that must be completed before a request
// may leave the given stage.
var requiredRoles = map[store.RequestStatus][]store.AgentRole{
	store.StatusIntake:     {},
	store.StatusDraft:      {store.RoleStrategist, store.RoleCopywriter},
	store.StatusProduction: {store.RoleProducer},
	store.StatusQA:         {store.RoleQA},
}

// milestonePercent maps each status to a coarse fallback completion value,
// distinct from the fine-grained weighted percentage in package progress.
var milestonePercent = map[store.RequestStatus]int{
	store.StatusIntake:     10,
	store.StatusDraft:      40,
	store.StatusProduction: 70,
	store.StatusQA:         90,
	store.StatusPublished:  100,
	store.StatusCancelled:  0,
}

// autoAdvance holds the stages the orchestrator progresses without an
// external approval action. qa deliberately requires an explicit approval.
var autoAdvance = map[store.RequestStatus]struct{}{
	store.StatusIntake:     {},
	store.StatusDraft:      {},
	store.StatusProduction: {},
}

// CanTransition checks the fixed edge table.
func CanTransition(from, to store.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatus returns the canonical forward neighbor, or false at boundaries.
func NextStatus(from store.RequestStatus) (store.RequestStatus, bool) {
	next, ok := forwardNeighbor[from]
	return next, ok
}

// PreviousStatus returns the canonical rollback neighbor, or false where no
// rollback edge exists.
func PreviousStatus(from store.RequestStatus) (store.RequestStatus, bool) {
	prev, ok := rollbackNeighbor[from]
	return prev, ok
}

// ShouldAutoAdvance reports whether the orchestrator may advance out of the
// given stage without operator action.
func ShouldAutoAdvance(status store.RequestStatus) bool {
	_, ok := autoAdvance[status]
	return ok
}

// RequiredRoles returns the roles whose tasks must be completed before the
// request may leave the given stage.
func RequiredRoles(status store.RequestStatus) []store.AgentRole {
	roles := requiredRoles[status]
	cp := make([]store.AgentRole, len(roles))
	copy(cp, roles)
	return cp
}

// TasksCompleteForStatus reports whether every required role for the stage
// has at least one task and all of that role's tasks are completed.
func TasksCompleteForStatus(status store.RequestStatus, tasks []*store.Task) bool {
	return len(BlockingTasks(status, tasks)) == 0
}

// BlockingTasks returns a human-readable list of the incomplete or missing
// required tasks preventing the request from leaving the given stage.
func BlockingTasks(status store.RequestStatus, tasks []*store.Task) []string {
	var blocking []string
	for _, role := range requiredRoles[status] {
		found := false
		for _, task := range tasks {
			if task.AgentRole != role {
				continue
			}
			found = true
			if task.Status != store.TaskCompleted {
				blocking = append(blocking, fmt.Sprintf("%s (%s) is %s", task.TaskName, role, task.Status))
			}
		}
		if !found {
			blocking = append(blocking, fmt.Sprintf("no %s task exists", role))
		}
	}
	sort.Strings(blocking)
	return blocking
}

// CanAdvanceToNext combines forward-transition legality with stage task
// completeness, returning a reason string on failure.
func CanAdvanceToNext(status store.RequestStatus, tasks []*store.Task) (bool, string) {
	next, ok := NextStatus(status)
	if !ok {
		return false, fmt.Sprintf("status %s has no forward transition", status)
	}
	if !CanTransition(status, next) {
		return false, fmt.Sprintf("transition %s -> %s is not allowed", status, next)
	}
	if blocking := BlockingTasks(status, tasks); len(blocking) > 0 {
		return false, "blocked on: " + strings.Join(blocking, "; ")
	}
	return true, ""
}

// ValidateTransition is the single entry point combining edge legality with
// task completeness for forward moves. Rollbacks and cancellation only check
// the edge table.
func ValidateTransition(from, to store.RequestStatus, tasks []*store.Task) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("transition %s -> %s is not allowed", from, to)
	}
	if next, ok := NextStatus(from); ok && next == to {
		if blocking := BlockingTasks(from, tasks); len(blocking) > 0 {
			return fmt.Errorf("cannot leave %s: %s", from, strings.Join(blocking, "; "))
		}
	}
	return nil
}

// CompletionPercent maps each status to its fixed milestone value.
func CompletionPercent(status store.RequestStatus) int {
	return milestonePercent[status]
}
