// Package runner executes one maintenance task safely.
//
// The task's combined output goes to a log file named after the task, which
// is truncated on every run. A failing or unstartable task produces exactly
// one operator notification and never an error for the caller.
package runner
