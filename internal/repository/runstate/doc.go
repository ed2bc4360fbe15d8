// Package runstate persists the last outcome of every task.
//
// The FileRepository keeps one YAML document in the log directory, keyed by
// task name, so operators and the tasks subcommand can see when each task
// last ran and whether it failed without opening the logs.
package runstate
