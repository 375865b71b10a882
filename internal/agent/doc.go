// Package agent executes request tasks through capability adapters.
//
// Each agent role maps to an adapter bound to a backing dependency; engine
// roles dispatch workflow executions, system roles auto-complete, and qa can
// auto-approve when configured. The runner owns task state persistence around
// a single execution and protects every adapter call with the dependency's
// circuit breaker, converting adapter panics into retriable AGENT_EXCEPTION
// failures.
package agent
