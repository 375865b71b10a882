// Package main hosts the loom CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the loom daemon: submitting content requests, inspecting
// pipelines, approving or rolling back stages, and configuration
// scaffolding. Configuration resolution happens once per invocation in the
// shared command context so subcommands only deal with presentation.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it here through dedicated commands or flags.
package main
