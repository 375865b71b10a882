// Package store persists content requests, their task pipelines, and timeline
// events in SQLite, and exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, and the task fields retry scheduling depends on (retry_count,
// next_retry_at, correlation_id) so orchestration survives process restarts
// without additional state.
//
// Treat this package as the single source of truth for request and task
// semantics; when you add new statuses or fields, update schema.go and bump
// schemaVersion.
package store
