// Package engine is the HTTP client for the external automation engine that
// executes content-production workflows.
//
// Each agent task type maps to a configured workflow id. Dispatch either
// returns a completed execution inline or accepts the work and reports later
// through a callback to the daemon, authenticated with an HMAC-SHA256
// signature over the body. Mock mode short-circuits dispatches with canned
// completed executions so the pipeline can run without a live engine.
package engine
