package model

import "time"

// Severity of an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AlertCategory classifies what triggered an alert
type AlertCategory string

const (
	CategoryJobFailure     AlertCategory = "job_failure"
	CategoryPerformance    AlertCategory = "performance"
	CategoryDataQuality    AlertCategory = "data_quality"
	CategoryScheduleMissed AlertCategory = "schedule_missed"
	CategoryConnectivity   AlertCategory = "connectivity"
	CategorySystem         AlertCategory = "system"
)

// AlertState is the lifecycle state of an alert
type AlertState string

const (
	AlertStateActive       AlertState = "active"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateResolved     AlertState = "resolved"
	AlertStateSilenced     AlertState = "silenced"
)

// Alert is a generated notification about a run outcome or system condition.
// Mutated only via acknowledge/resolve/silence; silenced alerts revert to
// active once SilencedUntil elapses and a sweep runs.
type Alert struct {
	ID            string        `json:"id"`
	Severity      Severity      `json:"severity"`
	Category      AlertCategory `json:"category"`
	Title         string        `json:"title"`
	Message       string        `json:"message,omitempty"`
	State         AlertState    `json:"state"`
	JobID         string        `json:"jobId,omitempty"`
	RunID         string        `json:"runId,omitempty"`
	SilencedUntil *time.Time    `json:"silencedUntil,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// AlertRuleType is the condition an alert rule evaluates
type AlertRuleType string

const (
	AlertRuleJobFailure     AlertRuleType = "job_failure"
	AlertRuleJobDuration    AlertRuleType = "job_duration"
	AlertRuleRecordCount    AlertRuleType = "record_count"
	AlertRuleScheduleMissed AlertRuleType = "schedule_missed"
)

// AlertRule is evaluated against each finalized run. An empty JobID means the
// rule applies to all jobs.
type AlertRule struct {
	ID          string        `json:"id"`
	Type        AlertRuleType `json:"type"`
	Enabled     bool          `json:"enabled"`
	Severity    Severity      `json:"severity"`
	JobID       string        `json:"jobId,omitempty"`
	MaxDuration time.Duration `json:"maxDuration,omitempty"` // job_duration
	MinRecords  int           `json:"minRecords,omitempty"`  // record_count
}

// SystemEvent is a non-run condition fed to the alert manager,
// e.g. a connectivity failure observed outside a run.
type SystemEvent struct {
	Category AlertCategory `json:"category"`
	Severity Severity      `json:"severity"`
	Title    string        `json:"title"`
	Message  string        `json:"message,omitempty"`
	JobID    string        `json:"jobId,omitempty"`
}
