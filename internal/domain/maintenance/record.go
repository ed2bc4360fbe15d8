package maintenance

import "time"

// RunRecord is the last known outcome of a task, kept between invocations.
type RunRecord struct {
	Task      string
	RunID     string
	StartedAt time.Time
	Result    ExecutionResult
}

// NewRunRecord captures result for the task started at startedAt.
func NewRunRecord(task *Task, runID string, startedAt time.Time, result *ExecutionResult) *RunRecord {
	return &RunRecord{
		Task:      task.Name,
		RunID:     runID,
		StartedAt: startedAt,
		Result:    *result,
	}
}

// Status summarizes the record for humans.
func (r *RunRecord) Status() string {
	switch {
	case r.Result.ExitCode == ExitCodeNotStarted:
		return "not started"
	case r.Result.Signal != "":
		return "killed (" + r.Result.Signal + ")"
	case r.Result.ExitedNonZero:
		return "failed"
	default:
		return "ok"
	}
}
