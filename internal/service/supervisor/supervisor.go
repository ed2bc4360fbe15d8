package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"
	"github.com/oshokin/upkeep/internal/notify"
)

// ErrServiceNotActive is returned when a service is not active after its restart.
var ErrServiceNotActive = errors.New("service is not active")

// SleepFunc waits for d or until the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Supervisor restarts services and checks their health once after a grace period.
type Supervisor struct {
	runner executil.Runner
	sink   notify.Sink
	sleep  SleepFunc
	grpc   HealthChecker
}

// Option configures Supervisor.
type Option func(*Supervisor)

// WithSleep replaces the grace-period wait, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *Supervisor) {
		s.sleep = fn
	}
}

// WithGRPCChecker replaces the gRPC health checker.
func WithGRPCChecker(c HealthChecker) Option {
	return func(s *Supervisor) {
		s.grpc = c
	}
}

// New creates a supervisor running restart and health commands with runner.
func New(runner executil.Runner, sink notify.Sink, opts ...Option) *Supervisor {
	s := &Supervisor{
		runner: runner,
		sink:   sink,
		sleep:  Sleep,
		grpc:   NewGRPCChecker(defaultGRPCTimeout),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RestartAndVerify restarts the service, waits its grace period and checks it once.
func (s *Supervisor) RestartAndVerify(ctx context.Context, svc *maintenance.ManagedService) error {
	ctx = logger.WithKV(logger.WithName(ctx, "supervisor"), "service", svc.Name)

	logger.InfoKV(ctx, "Restarting service", "command", svc.Restart)

	if _, err := executil.RunChecked(ctx, s.runner, "", svc.Restart...); err != nil {
		return s.fail(ctx, svc, fmt.Errorf("restart %s: %w: %w", svc.Name, ErrServiceNotActive, err))
	}

	if svc.GracePeriod > 0 {
		logger.DebugKV(ctx, "Waiting for the service to settle", "grace_period", svc.GracePeriod)

		if err := s.sleep(ctx, svc.GracePeriod); err != nil {
			return fmt.Errorf("wait for %s: %w", svc.Name, err)
		}
	}

	if err := s.check(ctx, &svc.Health); err != nil {
		return s.fail(ctx, svc, fmt.Errorf("%s: %w: %w", svc.Name, ErrServiceNotActive, err))
	}

	logger.Info(ctx, "Service is active")

	return nil
}

func (s *Supervisor) check(ctx context.Context, health *maintenance.HealthCheck) error {
	if health.GRPCAddress != "" {
		return s.grpc.Check(ctx, health.GRPCAddress, health.GRPCService)
	}

	_, err := executil.RunChecked(ctx, s.runner, "", health.Command...)

	return err
}

func (s *Supervisor) fail(ctx context.Context, svc *maintenance.ManagedService, err error) error {
	logger.ErrorKV(ctx, "Service did not come back", "error", err)

	message := svc.FailureMessage
	if message == "" {
		message = fmt.Sprintf("Service %s is not active after restart", svc.Name)
	}

	s.sink.Notify(context.WithoutCancel(ctx), message)

	return err
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
