// Package supervisor restarts managed services and verifies they come up.
//
// A restart is followed by a fixed grace period and a single health query,
// either a command (systemctl is-active by default) or a gRPC health check.
// Failures are notified and returned, but the caller is expected to carry on
// with the remaining services.
package supervisor
