// Package scheduler arms one timer per scheduled job and hands fires off to a
// callback. It owns no job state beyond the schedule snapshot it was given;
// re-scheduling after a job update means calling Schedule again.
package scheduler

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/schedule"
)

// ErrNoSchedule is returned when scheduling a job without a recurrence
var ErrNoSchedule = errors.New("job has no schedule")

// ErrScheduleExhausted is returned when the schedule yields no future occurrence
var ErrScheduleExhausted = errors.New("schedule has no future occurrence")

// FireFunc is invoked on each fire. A non-nil error means the hand-off was
// refused (for example a run already in flight); the occurrence is reported
// missed and the job is left unscheduled rather than silently retried.
type FireFunc func(jobID string, firedAt time.Time) error

// MissedFunc is invoked when a fire could not be handed off
type MissedFunc func(jobID string, expected time.Time, reason string)

type entry struct {
	jobID string
	sched model.Schedule
	timer Timer
	next  time.Time
}

// Scheduler maintains at most one armed timer per job
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	fire    FireFunc
	missed  MissedFunc
	entries map[string]*entry
}

// New returns a scheduler firing through the given callback
func New(clock Clock, fire FireFunc, missed MissedFunc) *Scheduler {
	if clock == nil {
		clock = WallClock()
	}
	return &Scheduler{
		clock:   clock,
		fire:    fire,
		missed:  missed,
		entries: make(map[string]*entry),
	}
}

// Schedule arms the job's next occurrence, replacing any existing timer.
// Returns the computed fire time.
func (s *Scheduler) Schedule(job *model.Job) (time.Time, error) {
	if job.Schedule == nil {
		return time.Time{}, errors.Wrap(ErrNoSchedule, job.Name)
	}
	if err := schedule.Validate(*job.Schedule); err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := schedule.NextRun(*job.Schedule, s.clock.Now())
	if !ok {
		return time.Time{}, errors.Wrap(ErrScheduleExhausted, job.Name)
	}

	s.armLocked(job.ID, *job.Schedule, next)
	log.WithFields(log.Fields{"job": job.ID, "next": next.Format(time.RFC3339)}).Info("job scheduled")
	return next, nil
}

// Unschedule cancels the job's timer. Reports whether a timer existed.
// An in-flight run is unaffected.
func (s *Scheduler) Unschedule(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jobID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, jobID)
	log.WithField("job", jobID).Info("job unscheduled")
	return true
}

// NextFire returns the armed fire time for a job, if any
func (s *Scheduler) NextFire(jobID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jobID]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Scheduled returns the ids of all jobs with an armed timer
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every timer
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
}

// armLocked replaces the job's timer with one firing at next
func (s *Scheduler) armLocked(jobID string, sched model.Schedule, next time.Time) {
	if prior, ok := s.entries[jobID]; ok {
		prior.timer.Stop()
	}
	e := &entry{jobID: jobID, sched: sched, next: next}
	e.timer = s.clock.AfterFunc(next.Sub(s.clock.Now()), func() { s.fired(jobID) })
	s.entries[jobID] = e
}

// fired hands the occurrence off and immediately re-arms from the fire time,
// so a long run cannot delay the next occurrence's computation.
func (s *Scheduler) fired(jobID string) {
	s.mu.Lock()
	e, ok := s.entries[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	firedAt := e.next

	if next, more := schedule.NextRun(e.sched, firedAt); more && e.sched.Frequency != model.FrequencyOnce {
		s.armLocked(jobID, e.sched, next)
	} else {
		delete(s.entries, jobID)
	}
	s.mu.Unlock()

	if err := s.fire(jobID, firedAt); err != nil {
		log.WithError(err).WithField("job", jobID).Warn("scheduled fire not handed off")
		s.Unschedule(jobID)
		if s.missed != nil {
			s.missed(jobID, firedAt, err.Error())
		}
	}
}
