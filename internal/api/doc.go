// Package api defines the wire types shared by the daemon's HTTP API and the
// CLI client, plus the converters from storage models to their wire form.
package api
