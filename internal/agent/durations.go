package agent

import (
	"time"

	"loom/internal/store"
)

// Typical execution times per role, used as progress weights and remaining
// time estimates when a task carries no explicit override.
var roleEstimates = map[store.AgentRole]time.Duration{
	store.RoleExecutive:   5 * time.Second,
	store.RoleTaskPlanner: 10 * time.Second,
	store.RoleStrategist:  30 * time.Second,
	store.RoleCopywriter:  45 * time.Second,
	store.RoleProducer:    180 * time.Second,
	store.RoleQA:          10 * time.Second,
}

// EstimatedDuration returns the expected execution time for a task. An
// explicit estimated_duration_seconds input wins over the role default.
func EstimatedDuration(task *store.Task) time.Duration {
	if seconds, ok := task.EstimatedDurationSeconds(); ok {
		return time.Duration(seconds * float64(time.Second))
	}
	if d, ok := roleEstimates[task.AgentRole]; ok {
		return d
	}
	return 30 * time.Second
}
