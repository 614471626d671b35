// Package consts provides application-wide constants and build information.
package consts

import "time"

// ServiceName is the canonical service identifier used in logging,
// telemetry, and the HTTP surface.
const ServiceName = "hooktrail"

// Build information, injected at build time via -ldflags
var (
	// Version is the application version
	Version = "dev"
	// BuildTime is the time the binary was built
	BuildTime = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// startedAt records process start for uptime reporting
var startedAt = time.Now()

// SetStartedAt overrides the recorded start time; used by tests.
func SetStartedAt(t time.Time) {
	startedAt = t
}

// Uptime returns the elapsed time since process start.
func Uptime() time.Duration {
	return time.Since(startedAt)
}
