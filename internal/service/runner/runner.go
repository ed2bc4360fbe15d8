package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/logger"
	"github.com/oshokin/upkeep/internal/notify"
)

const (
	logFileMode os.FileMode = 0o644
	logDirMode  os.FileMode = 0o755
	logSuffix               = ".log"
)

var errEmptyCommand = errors.New("task command is empty")

// Runner runs tasks with their output captured under logDir.
type Runner struct {
	logDir string
	sink   notify.Sink
}

// New creates a task runner writing logs into logDir and reporting failures to sink.
func New(logDir string, sink notify.Sink) *Runner {
	return &Runner{
		logDir: logDir,
		sink:   sink,
	}
}

// LogPath returns the log file of a task. The same name always maps to the same path.
func (r *Runner) LogPath(taskName string) string {
	return filepath.Join(r.logDir, taskName+logSuffix)
}

// RunSafely executes the task and decides whether to notify.
func (r *Runner) RunSafely(ctx context.Context, task *maintenance.Task) *maintenance.ExecutionResult {
	ctx = logger.WithKV(logger.WithName(ctx, "runner"), "task", task.Name)

	result := &maintenance.ExecutionResult{
		LogPath: r.LogPath(task.Name),
	}

	logger.InfoKV(ctx, "Starting task", "command", task.Argv(), "log", result.LogPath)

	started := time.Now()
	err := r.execute(ctx, task, result)
	result.Duration = time.Since(started)
	result.ExitedNonZero = err != nil || result.ExitCode != 0

	if !result.ExitedNonZero {
		logger.InfoKV(ctx, "Task succeeded", "duration", result.Duration)
		return result
	}

	logger.ErrorKV(ctx, "Task failed",
		"exit_code", result.ExitCode, "signal", result.Signal, "duration", result.Duration, "error", err)

	// A task killed by shutdown still gets its report.
	r.sink.Notify(context.WithoutCancel(ctx), task.FailureMessage(result))

	return result
}

// execute runs the task with stdout and stderr sharing the truncated log file
// and fills the exit status of result. A task that could not be started gets
// ExitCodeNotStarted and the start error.
func (r *Runner) execute(ctx context.Context, task *maintenance.Task, result *maintenance.ExecutionResult) error {
	result.ExitCode = maintenance.ExitCodeNotStarted

	argv := task.Argv()
	if len(argv) == 0 {
		return errEmptyCommand
	}

	if err := os.MkdirAll(filepath.Dir(result.LogPath), logDirMode); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Clean(result.LogPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFileMode)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	defer func() {
		if closeErr := logFile.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Closing task log failed", "error", closeErr)
		}
	}()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = task.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Nested invocations of upkeep must not inherit this run's phase or lock.
	cmd.Env = append(maintenance.WithoutInvocationEnv(cmd.Environ()), task.Env...)

	err = cmd.Run()
	if err == nil {
		result.ExitCode = 0
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode, result.Signal = exitStatus(exitErr)
		return nil
	}

	// The process never ran: leave a trace for the operator reading the log.
	_, _ = fmt.Fprintf(logFile, "upkeep: cannot start %q: %v\n", argv[0], err)

	return err
}

// exitStatus maps a signal death to 128+signo so it never reads as a start failure.
func exitStatus(exitErr *exec.ExitError) (int, string) {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return exitErr.ExitCode(), ""
	}

	signal := status.Signal()

	return maintenance.ExitCodeSignalBase + int(signal), signal.String()
}
