// Package services defines the failure taxonomy and context plumbing shared
// by capability adapters, the orchestrator, and the HTTP API.
//
// Errors are tagged with sentinel markers at the point of failure via Wrap and
// classified later with CodeOf/Retriable, so control flow never depends on
// string matching. Context helpers carry request, task, role, and correlation
// identifiers for structured logging.
package services
