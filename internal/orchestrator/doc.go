// Package orchestrator drives content requests through their lifecycle.
//
// A processing pass runs every task that is eligible now, honoring task
// dependencies and stage order, and auto-advances the request while its
// stage gates are satisfied. Failed tasks get jittered exponential backoff
// until the retry budget runs out, then the request stalls and the operator
// is notified. qa never auto-advances: publishing always takes an explicit
// approval. A per-request in-flight guard collapses concurrent passes so
// timers, callbacks, and API calls can all trigger processing without
// double-running tasks.
package orchestrator
