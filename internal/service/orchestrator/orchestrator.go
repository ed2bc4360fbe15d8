package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/lock"
	"github.com/oshokin/upkeep/internal/logger"
)

const (
	// MarkerEnv is set for the process re-executed after an update.
	MarkerEnv = maintenance.MarkerEnv
	// RunIDEnv carries the run identifier across the re-exec.
	RunIDEnv = maintenance.RunIDEnv
	// LockFDEnv hands the held instance lock to the re-executed process.
	LockFDEnv = maintenance.LockFDEnv
)

// ErrUnknownTask is returned for a task name missing from the configuration.
var ErrUnknownTask = errors.New("unknown task")

// SelfUpdater synchronizes the orchestrator's own checkout.
type SelfUpdater interface {
	CheckAndApply(ctx context.Context) (maintenance.UpdateOutcome, error)
}

// TaskRunner executes a task without failing the caller.
type TaskRunner interface {
	RunSafely(ctx context.Context, task *maintenance.Task) *maintenance.ExecutionResult
}

// StatusRecorder keeps the last outcome of each task.
type StatusRecorder interface {
	Save(ctx context.Context, record *maintenance.RunRecord) error
}

// ReexecFunc starts the current program afresh with env. On success the
// production implementation never returns.
type ReexecFunc func(ctx context.Context, env []string) error

// Dependencies are the collaborators of the orchestrator.
type Dependencies struct {
	Updater SelfUpdater
	Runner  TaskRunner
	// Status is optional.
	Status  StatusRecorder
	Reexec  ReexecFunc
	// Environ is the environment handed to the re-executed process.
	Environ []string
}

// Orchestrator runs one invocation in a fixed phase.
type Orchestrator struct {
	cfg   *config.Config
	deps  Dependencies
	phase maintenance.Phase
	runID string
}

// New creates an orchestrator for the given phase.
func New(cfg *config.Config, deps Dependencies, phase maintenance.Phase, runID string) *Orchestrator {
	if deps.Reexec == nil {
		deps.Reexec = Reexec
	}

	if deps.Environ == nil {
		deps.Environ = os.Environ()
	}

	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		phase: phase,
		runID: runID,
	}
}

// Phase returns the phase this orchestrator was created in.
func (o *Orchestrator) Phase() maintenance.Phase {
	return o.phase
}

// Run drives the invocation of taskName. It returns an error only for
// failures that must halt the invocation: unknown task, lock contention,
// sync conflict, asset rebuild failure or a failed re-exec. A failing task
// is not an error.
func (o *Orchestrator) Run(ctx context.Context, taskName string, args []string) error {
	ctx = logger.WithKV(ctx, "phase", o.phase.String())

	task, ok := o.cfg.LookupTask(taskName, args)
	if !ok {
		return fmt.Errorf("%w: %q (configured: %s)", ErrUnknownTask, taskName, strings.Join(o.cfg.TaskNames(), ", "))
	}

	held, err := o.acquireLock(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := held.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Releasing lock failed", "error", releaseErr)
		}
	}()

	outcome := maintenance.Unchanged

	if o.phase == maintenance.PhaseBootstrap {
		if outcome, err = o.deps.Updater.CheckAndApply(ctx); err != nil {
			logger.ErrorKV(ctx, "Self-update failed, task not started", "task", taskName, "error", err)
			return fmt.Errorf("self-update: %w", err)
		}
	}

	if maintenance.Next(o.phase, outcome) == maintenance.ActionReexec {
		logger.Info(ctx, "Code updated, restarting on the new revision")

		env, handOverErr := o.reexecEnv(held)
		if handOverErr != nil {
			return handOverErr
		}

		if err = o.deps.Reexec(ctx, env); err != nil {
			return fmt.Errorf("re-exec: %w", err)
		}

		return nil
	}

	startedAt := time.Now()
	result := o.deps.Runner.RunSafely(ctx, task)

	logger.InfoKV(ctx, "Invocation finished",
		"task", task.Name, "failed", result.ExitedNonZero, "log", result.LogPath)

	o.recordStatus(ctx, maintenance.NewRunRecord(task, o.runID, startedAt, result))

	return nil
}

func (o *Orchestrator) recordStatus(ctx context.Context, record *maintenance.RunRecord) {
	if o.deps.Status == nil {
		return
	}

	if err := o.deps.Status.Save(ctx, record); err != nil {
		logger.WarnKV(ctx, "Recording task status failed", "task", record.Task, "error", err)
	}
}

func (o *Orchestrator) acquireLock(ctx context.Context) (*lock.Lock, error) {
	path := o.cfg.LockFilePath()
	if path == "" {
		return nil, nil
	}

	if held := o.adoptLock(ctx, path); held != nil {
		return held, nil
	}

	held, err := lock.TryAcquire(path)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Lock acquired", "path", path)

	return held, nil
}

// adoptLock takes over the lock handed over by the bootstrap process, if any.
func (o *Orchestrator) adoptLock(ctx context.Context, path string) *lock.Lock {
	if o.phase != maintenance.PhaseRunning {
		return nil
	}

	value := lookupEnv(o.deps.Environ, LockFDEnv)
	if value == "" {
		return nil
	}

	fd, err := strconv.Atoi(value)
	if err == nil {
		var held *lock.Lock

		if held, err = lock.Adopt(fd, path); err == nil {
			logger.DebugKV(ctx, "Lock inherited", "path", path, "fd", fd)
			return held
		}
	}

	logger.WarnKV(ctx, "Inherited lock is unusable, acquiring it again", "fd", value, "error", err)

	return nil
}

// reexecEnv returns the environment for the re-executed process: the marker,
// the run id and, when locking is on, the inherited lock descriptor.
func (o *Orchestrator) reexecEnv(held *lock.Lock) ([]string, error) {
	env := append(maintenance.WithoutInvocationEnv(o.deps.Environ), MarkerEnv+"=1", RunIDEnv+"="+o.runID)

	if held == nil {
		return env, nil
	}

	fd, err := held.Inherit()
	if err != nil {
		return nil, fmt.Errorf("hand over lock: %w", err)
	}

	return append(env, LockFDEnv+"="+strconv.Itoa(fd)), nil
}

// Reexec replaces the current process image with the running executable,
// keeping its arguments.
func Reexec(_ context.Context, env []string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	return syscall.Exec(executable, os.Args, env)
}
