package model

import "time"

// Frequency is how often a scheduled job recurs
type Frequency string

const (
	FrequencyOnce     Frequency = "once"
	FrequencyMinutely Frequency = "minutely"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyCustom   Frequency = "custom" // five-field cron expression
)

// Schedule describes when a job should next run.
// Anchor fields only apply to the frequencies that use them:
// Minute for hourly and up, Hour for daily and up, DaysOfWeek for weekly,
// DayOfMonth for monthly, Expression for custom.
type Schedule struct {
	Frequency  Frequency  `json:"frequency"`
	Minute     int        `json:"minute,omitempty"`
	Hour       int        `json:"hour,omitempty"`
	DaysOfWeek []int      `json:"daysOfWeek,omitempty"` // 0 = Sunday .. 6 = Saturday
	DayOfMonth int        `json:"dayOfMonth,omitempty"` // 1-31, clamped to month end
	Expression string     `json:"expression,omitempty"` // cron, custom frequency only
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
}
