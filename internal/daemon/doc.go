// Package daemon hosts the long-running loom process: the request processing
// loop, the HTTP API, and the single-instance file lock. The processing loop
// sweeps active requests on a timer and tightens the interval when a retry
// comes due sooner; engine callbacks and API calls trigger passes in between.
package daemon
