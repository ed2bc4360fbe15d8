// Package executiltest provides a scripted executil.Runner for tests.
package executiltest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrFailed is the error returned for scripted failures.
var ErrFailed = errors.New("exit status 1")

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Argv []string
}

// Line returns the command line joined with spaces.
func (c Call) Line() string {
	return strings.Join(c.Argv, " ")
}

// Response is what the fake returns for a command line.
type Response struct {
	Output string
	Err    error
}

// Runner records calls and answers from a table keyed by the joined command line.
// A prefix match on the key is used when no exact entry exists.
// Unknown commands succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]Response
	hooks     map[string]func()
}

// NewRunner creates an empty fake runner.
func NewRunner() *Runner {
	return &Runner{
		responses: make(map[string]Response),
		hooks:     make(map[string]func()),
	}
}

// On registers the response for a command line (or a command line prefix).
func (r *Runner) On(line string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses[line] = resp

	return r
}

// Fail registers a failure with the given output.
func (r *Runner) Fail(line, output string) *Runner {
	return r.On(line, Response{Output: output, Err: ErrFailed})
}

// Hook registers a callback executed when the command line is run.
func (r *Runner) Hook(line string, fn func()) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks[line] = fn

	return r
}

// Run implements executil.Runner.
func (r *Runner) Run(_ context.Context, dir string, argv ...string) ([]byte, error) {
	call := Call{Dir: dir, Argv: slices.Clone(argv)}
	line := call.Line()

	r.mu.Lock()
	r.calls = append(r.calls, call)
	resp, found := r.responses[line]

	if !found {
		for key, candidate := range r.responses {
			if strings.HasPrefix(line, key) {
				resp = candidate
				break
			}
		}
	}

	hook := r.hooks[line]
	r.mu.Unlock()

	if hook != nil {
		hook()
	}

	return []byte(resp.Output), resp.Err
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.calls)
}

// Count returns how many times the exact command line was run.
func (r *Runner) Count(line string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, call := range r.calls {
		if call.Line() == line {
			n++
		}
	}

	return n
}
