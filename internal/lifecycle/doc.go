// Package lifecycle defines the request state machine: legal status
// transitions, the task prerequisites gating each stage, and milestone
// completion values.
//
// The edge table is fixed at compile time. The orchestrator consults
// ShouldAutoAdvance and CanAdvanceToNext on every pass; the HTTP API uses
// ValidateTransition for operator-initiated moves (approve, cancel,
// rollback).
package lifecycle
