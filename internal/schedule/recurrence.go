// Package schedule computes the next valid execution instant for a job's
// recurrence descriptor. All functions are pure: the caller supplies the
// reference time, nothing here reads the clock.
package schedule

import (
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// customHorizon bounds the forward search for custom (cron) schedules.
// A schedule with no occurrence inside the horizon is treated as mis-specified.
const customHorizon = 365 * 24 * time.Hour

// NextRun returns the smallest instant strictly after ref satisfying the
// schedule, and false when the schedule has no further occurrence
// (Once already elapsed, EndTime passed, or no cron match inside a year).
func NextRun(s model.Schedule, ref time.Time) (time.Time, bool) {
	if s.Frequency == model.FrequencyOnce {
		if s.StartTime == nil || !s.StartTime.After(ref) {
			return time.Time{}, false
		}
		return bounded(*s.StartTime, s)
	}

	// A future StartTime moves the search window forward so the first
	// occurrence is never before the schedule opens.
	if s.StartTime != nil && s.StartTime.After(ref) {
		ref = s.StartTime.Add(-time.Nanosecond)
	}

	var next time.Time
	switch s.Frequency {
	case model.FrequencyMinutely:
		next = ref.Truncate(time.Minute).Add(time.Minute)
	case model.FrequencyHourly:
		next = nextHourly(s, ref)
	case model.FrequencyDaily:
		next = nextDaily(s, ref)
	case model.FrequencyWeekly:
		next = nextWeekly(s, ref)
	case model.FrequencyMonthly:
		next = nextMonthly(s, ref)
	case model.FrequencyCustom:
		n, ok := nextCron(s.Expression, ref)
		if !ok {
			return time.Time{}, false
		}
		next = n
	default:
		return time.Time{}, false
	}

	return bounded(next, s)
}

// Validate checks a schedule descriptor without computing anything
func Validate(s model.Schedule) error {
	switch s.Frequency {
	case model.FrequencyOnce:
		if s.StartTime == nil {
			return errors.New("once schedule requires startTime")
		}
	case model.FrequencyMinutely, model.FrequencyHourly, model.FrequencyDaily,
		model.FrequencyWeekly, model.FrequencyMonthly:
		if s.Minute < 0 || s.Minute > 59 {
			return errors.Errorf("minute out of range: %d", s.Minute)
		}
		if s.Hour < 0 || s.Hour > 23 {
			return errors.Errorf("hour out of range: %d", s.Hour)
		}
		if s.DayOfMonth < 0 || s.DayOfMonth > 31 {
			return errors.Errorf("dayOfMonth out of range: %d", s.DayOfMonth)
		}
		for _, d := range s.DaysOfWeek {
			if d < 0 || d > 6 {
				return errors.Errorf("dayOfWeek out of range: %d", d)
			}
		}
	case model.FrequencyCustom:
		if _, err := cronexpr.Parse(s.Expression); err != nil {
			return errors.Wrapf(err, "invalid cron expression %q", s.Expression)
		}
	default:
		return errors.Errorf("unknown frequency: %s", s.Frequency)
	}
	return nil
}

func bounded(next time.Time, s model.Schedule) (time.Time, bool) {
	if s.EndTime != nil && next.After(*s.EndTime) {
		return time.Time{}, false
	}
	return next, true
}

func nextHourly(s model.Schedule, ref time.Time) time.Time {
	next := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), s.Minute, 0, 0, ref.Location())
	if !next.After(ref) {
		next = next.Add(time.Hour)
	}
	return next
}

func nextDaily(s model.Schedule, ref time.Time) time.Time {
	next := time.Date(ref.Year(), ref.Month(), ref.Day(), s.Hour, s.Minute, 0, 0, ref.Location())
	if !next.After(ref) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func nextWeekly(s model.Schedule, ref time.Time) time.Time {
	days := s.DaysOfWeek
	if len(days) == 0 {
		days = []int{int(ref.Weekday())}
	}

	// Candidate per target weekday within the next seven days, nearest wins.
	var best time.Time
	for _, d := range days {
		offset := (d - int(ref.Weekday()) + 7) % 7
		c := time.Date(ref.Year(), ref.Month(), ref.Day(), s.Hour, s.Minute, 0, 0, ref.Location())
		c = c.AddDate(0, 0, offset)
		if !c.After(ref) {
			c = c.AddDate(0, 0, 7)
		}
		if best.IsZero() || c.Before(best) {
			best = c
		}
	}
	return best
}

func nextMonthly(s model.Schedule, ref time.Time) time.Time {
	day := s.DayOfMonth
	if day == 0 {
		day = 1
	}

	next := monthlyCandidate(ref.Year(), ref.Month(), day, s.Hour, s.Minute, ref.Location())
	if !next.After(ref) {
		y, m := ref.Year(), ref.Month()+1
		next = monthlyCandidate(y, m, day, s.Hour, s.Minute, ref.Location())
	}
	return next
}

// monthlyCandidate builds the instant for a given month, clamping the day to
// the month's last day (dayOfMonth=31 against February yields Feb 28/29).
func monthlyCandidate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func nextCron(expression string, ref time.Time) (time.Time, bool) {
	expr, err := cronexpr.Parse(expression)
	if err != nil {
		return time.Time{}, false
	}
	next := expr.Next(ref)
	if next.IsZero() || next.Sub(ref) > customHorizon {
		return time.Time{}, false
	}
	return next, true
}
