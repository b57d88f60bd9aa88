// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// HealthCheckTimeout bounds a remote tool server health probe.
	HealthCheckTimeout = 5 * time.Second

	// VNCCallTimeout bounds a single relay invocation.
	VNCCallTimeout = 30 * time.Second

	// BashTimeout bounds a single shell command.
	BashTimeout = 120 * time.Second

	// ShutdownTimeout is how long servers get to drain on SIGINT/SIGTERM.
	ShutdownTimeout = 15 * time.Second
)

// Logical display the agent is told about.
const (
	DisplayWidth  = 1280
	DisplayHeight = 720
)
