// Package orchestrator sequences one invocation: self-update, re-exec and
// the requested maintenance task.
//
// The phase (Bootstrap or Running) is derived once from the marker
// environment variable. A bootstrap process that pulls new code replaces
// itself with a fresh copy of the binary in the Running phase, so the task
// always runs on the code that is on disk.
package orchestrator
