// Package gateway wires the configured components into one HTTP server: the
// MCP transport endpoints, the diagnostics endpoints, and the operator API
// for approval decisions and image uploads. It owns the server lifecycle.
package gateway
