// Command loomd runs the loom daemon: the background processing loop and the
// HTTP API the loom CLI talks to. All wiring lives in internal/daemon; this
// binary only loads configuration, sets up logging, and handles signals.
package main
