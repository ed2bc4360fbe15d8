// Package executil abstracts running collaborator commands (git, systemctl,
// build tools, notification helpers) so services can be tested with fakes.
package executil

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned when a command line has no executable.
var ErrEmptyCommand = errors.New("empty command")

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, argv ...string) ([]byte, error)
}

// CLIRunner executes commands with os/exec.
type CLIRunner struct {
	// Env is appended to the inherited environment when non-empty.
	Env []string
}

// NewCLIRunner creates a runner inheriting the process environment.
func NewCLIRunner() *CLIRunner {
	return &CLIRunner{}
}

// Run executes argv in dir and returns combined stdout and stderr.
func (r *CLIRunner) Run(ctx context.Context, dir string, argv ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	return cmd.CombinedOutput()
}

// CommandError carries the output of a failed command for diagnostics.
type CommandError struct {
	Argv   []string
	Output string
	Err    error
}

// Error implements error.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}

	return msg
}

// Unwrap returns the underlying execution error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// RunChecked runs argv and wraps a failure in a *CommandError with the captured output.
func RunChecked(ctx context.Context, r Runner, dir string, argv ...string) ([]byte, error) {
	output, err := r.Run(ctx, dir, argv...)
	if err != nil {
		return output, &CommandError{Argv: argv, Output: string(output), Err: err}
	}

	return output, nil
}
