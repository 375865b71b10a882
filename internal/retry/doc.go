// Package retry computes exponential backoff schedules for failed tasks.
//
// The policy itself is stateless: the durable retry state (attempt count and
// next retry time) lives on the task row, so schedules survive daemon
// restarts. Jitter spreads retries from many requests so a shared dependency
// outage does not produce a synchronized thundering herd when it recovers.
package retry
