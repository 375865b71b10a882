// Package notifications delivers orchestration events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Individual event categories can be toggled so an operator can
// keep publish alerts without intake noise.
//
// Extend this package if you need alternative transports; orchestration code
// depends only on the simple Service interface.
package notifications
