package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultGRPCTimeout = 5 * time.Second

var errNotServing = errors.New("health status is not SERVING")

// HealthChecker queries the liveness of a network service.
type HealthChecker interface {
	Check(ctx context.Context, address, service string) error
}

// GRPCChecker uses the standard grpc.health.v1 protocol.
type GRPCChecker struct {
	timeout time.Duration
}

// NewGRPCChecker creates a checker bounding each check with timeout.
func NewGRPCChecker(timeout time.Duration) *GRPCChecker {
	return &GRPCChecker{timeout: timeout}
}

// Check returns nil when the service at address reports SERVING.
// Managed services listen on the local host, so the transport is insecure.
func (c *GRPCChecker) Check(ctx context.Context, address, service string) error {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}

	defer func() {
		_ = conn.Close()
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return fmt.Errorf("health check %s: %w", address, err)
	}

	if status := resp.GetStatus(); status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s reports %s: %w", address, status, errNotServing)
	}

	return nil
}
