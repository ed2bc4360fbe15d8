package maintenance

import (
	"slices"
	"strings"
)

// Environment variables carrying one invocation across the re-exec.
const (
	// MarkerEnv is set for the process re-executed after an update.
	MarkerEnv = "UPKEEP_UPDATED"
	// RunIDEnv carries the run identifier.
	RunIDEnv = "UPKEEP_RUN_ID"
	// LockFDEnv is the inherited descriptor of the held instance lock.
	LockFDEnv = "UPKEEP_LOCK_FD"
)

// WithoutInvocationEnv returns a copy of environ without the variables above,
// so tasks and nested invocations start as fresh top-level runs.
func WithoutInvocationEnv(environ []string) []string {
	return slices.DeleteFunc(slices.Clone(environ), func(kv string) bool {
		name, _, _ := strings.Cut(kv, "=")
		return name == MarkerEnv || name == RunIDEnv || name == LockFDEnv
	})
}
