package maintenance

import "time"

// HealthCheck describes how liveness of a managed service is queried.
// Exactly one of Command and GRPCAddress is set after configuration defaults.
type HealthCheck struct {
	// Command exits zero when the service is active.
	Command []string
	// GRPCAddress is checked with the grpc.health.v1 protocol.
	GRPCAddress string
	// GRPCService is the service name sent in the health request, empty for the server as a whole.
	GRPCService string
}

// ManagedService is a long-running process restarted after a self-update.
type ManagedService struct {
	// Name identifies the service in logs and default commands.
	Name string
	// Restart is the command that restarts the service.
	Restart []string
	// Health is queried once after GracePeriod.
	Health HealthCheck
	// GracePeriod is the wait between restart and health check.
	GracePeriod time.Duration
	// FailureMessage is sent to the operator when the service does not come up.
	FailureMessage string
}
