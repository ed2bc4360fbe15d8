package maintenance

import (
	"strconv"
	"strings"
	"time"
)

// Message placeholders expanded by Task.FailureMessage.
const (
	PlaceholderTask     = "{task}"
	PlaceholderLog      = "{log}"
	PlaceholderExitCode = "{exit_code}"
)

// ExitCodeNotStarted is reported when the executable could not be started at all.
const ExitCodeNotStarted = -1

// ExitCodeSignalBase is added to the signal number of a killed task, as shells do.
const ExitCodeSignalBase = 128

// Task is one named maintenance job, invoked as an opaque executable.
type Task struct {
	// Name identifies the task on the command line and names its log file.
	Name string
	// Command is the executable followed by its configured arguments.
	Command []string
	// Args are extra arguments passed on the command line after the task name.
	Args []string
	// ErrorMessage is the notification template used when the task fails.
	ErrorMessage string
	// Dir is the working directory of the task.
	Dir string
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
}

// Argv returns the full command line: configured command plus invocation arguments.
func (t *Task) Argv() []string {
	argv := make([]string, 0, len(t.Command)+len(t.Args))
	argv = append(argv, t.Command...)
	argv = append(argv, t.Args...)

	return argv
}

// FailureMessage expands the error template for a failed run.
func (t *Task) FailureMessage(result *ExecutionResult) string {
	replacer := strings.NewReplacer(
		PlaceholderTask, t.Name,
		PlaceholderLog, result.LogPath,
		PlaceholderExitCode, strconv.Itoa(result.ExitCode),
	)

	return replacer.Replace(t.ErrorMessage)
}

// ExecutionResult describes one finished task invocation.
type ExecutionResult struct {
	// ExitedNonZero is true when the task failed or could not be started.
	ExitedNonZero bool
	// ExitCode is the process exit status, ExitCodeNotStarted if it never ran.
	ExitCode int
	// LogPath points to the captured combined stdout and stderr.
	LogPath string
	// Duration is the wall time spent on the task.
	Duration time.Duration
	// Signal names the signal that killed the task, empty otherwise.
	Signal string
}
