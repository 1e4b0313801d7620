package model

import "time"

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a named unit of ETL work: ordered sources, ordered transformation
// rules, ordered destinations, and an optional recurrence schedule.
// A nil Schedule means the job only runs on manual trigger.
type Job struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Enabled         bool       `json:"enabled"`
	SourceIDs       []string   `json:"sourceIds"`
	DestinationIDs  []string   `json:"destinationIds"`
	RuleIDs         []string   `json:"ruleIds"` // execution order is this list's order
	Schedule        *Schedule  `json:"schedule,omitempty"`
	ContinueOnError bool       `json:"continueOnError"`
	Status          JobStatus  `json:"status"`
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt       *time.Time `json:"nextRunAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// References reports whether the job references the given data source id,
// either as a source or as a destination.
func (j *Job) References(dataSourceID string) bool {
	for _, id := range j.SourceIDs {
		if id == dataSourceID {
			return true
		}
	}
	for _, id := range j.DestinationIDs {
		if id == dataSourceID {
			return true
		}
	}
	return false
}

// UsesRule reports whether the job references the given transformation rule id.
func (j *Job) UsesRule(ruleID string) bool {
	for _, id := range j.RuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
