package model

import "time"

// RunStatus is the lifecycle state of one execution attempt
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a finished state
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// RecordCounts tracks records through the extract/transform/load stages
type RecordCounts struct {
	Extracted   int `json:"extracted"`
	Transformed int `json:"transformed"`
	Loaded      int `json:"loaded"`
	Rejected    int `json:"rejected"`
}

// RunError is a structured error recorded during a run
type RunError struct {
	Stage     string    `json:"stage"` // extract, transform, load, config
	Ref       string    `json:"ref,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is one execution attempt of one job. Created at run start, mutated in
// place by the tracker until finalized, then immutable.
type Run struct {
	ID        string       `json:"id"`
	JobID     string       `json:"jobId"`
	Status    RunStatus    `json:"status"`
	StartTime time.Time    `json:"startTime"`
	EndTime   *time.Time   `json:"endTime,omitempty"`
	Counts    RecordCounts `json:"counts"`
	Log       []string     `json:"log,omitempty"`
	Errors    []RunError   `json:"errors,omitempty"`
}

// Duration is the wall-clock time of the run, zero while still running
func (r *Run) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
