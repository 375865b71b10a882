// Package progress computes weighted completion percentages and remaining
// time estimates for content requests. Task weights come from estimated
// execution durations, scaled by the observed throughput of completed tasks.
package progress
