// Package timeline records the append-only activity feed for content
// requests. Events are best effort: a write failure is logged and swallowed
// so the pipeline never stalls on its own audit trail.
package timeline
