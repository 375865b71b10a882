// Package intake turns submitted content briefs into persisted requests with
// their full task pipeline. Each content type has a fixed blueprint of agent
// steps with dependencies; requests always start in intake status.
package intake
