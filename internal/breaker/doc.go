// Package breaker implements a per-dependency circuit breaker with the
// classic closed/open/half-open state machine.
//
// Breakers are keyed by dependency name in a shared Registry so the failure
// count reflects every concurrent request hitting that dependency. An open
// breaker rejects calls with a SERVICE_UNAVAILABLE error carrying the
// remaining cooldown, which the orchestrator treats like any other retriable
// task failure.
package breaker
