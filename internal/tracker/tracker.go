// Package tracker records the lifecycle of job runs: state transitions,
// record counts, timing, log lines, and structured errors, persisted to an
// append-only run history.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

// Tracker creates and finalizes run records
type Tracker struct {
	store *store.Store
	now   func() time.Time
}

// New returns a tracker persisting to the given store
func New(s *store.Store) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// WithClock overrides the time source, for tests
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Start opens a new run for the job and persists it with status Running
func (t *Tracker) Start(jobID string) (*ActiveRun, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Status:    model.RunStatusRunning,
		StartTime: t.now().UTC(),
	}
	if err := t.store.InsertRun(run); err != nil {
		return nil, errors.Wrap(err, "persist run start")
	}
	return &ActiveRun{run: run, tracker: t}, nil
}

// Runs returns run history, optionally narrowed to one job
func (t *Tracker) Runs(jobID string) ([]*model.Run, error) {
	return t.store.GetRuns(store.RunFilter{JobID: jobID})
}

// Run returns one run by id
func (t *Tracker) Run(id string) (*model.Run, error) {
	return t.store.GetRun(id)
}

// ActiveRun is the mutable view of an in-flight run. All mutators are
// serialized by an internal mutex; after Finalize they become no-ops.
type ActiveRun struct {
	mu        sync.Mutex
	run       *model.Run
	tracker   *Tracker
	finalized bool
}

// ID returns the run id
func (a *ActiveRun) ID() string {
	return a.run.ID
}

// Logf appends a formatted line to the run log
func (a *ActiveRun) Logf(format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.run.Log = append(a.run.Log, fmt.Sprintf(format, args...))
}

// RecordError appends a structured error for a stage
func (a *ActiveRun) RecordError(stage, ref string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.run.Errors = append(a.run.Errors, model.RunError{
		Stage:     stage,
		Ref:       ref,
		Message:   err.Error(),
		Timestamp: a.tracker.now().UTC(),
	})
}

// AddExtracted increments the extracted record count
func (a *ActiveRun) AddExtracted(n int) {
	a.addCounts(func(c *model.RecordCounts) { c.Extracted += n })
}

// SetTransformed sets the post-transformation record count
func (a *ActiveRun) SetTransformed(n int) {
	a.addCounts(func(c *model.RecordCounts) { c.Transformed = n })
}

// AddLoaded increments the loaded record count
func (a *ActiveRun) AddLoaded(n int) { a.addCounts(func(c *model.RecordCounts) { c.Loaded += n }) }

// AddRejected increments the rejected record count
func (a *ActiveRun) AddRejected(n int) { a.addCounts(func(c *model.RecordCounts) { c.Rejected += n }) }

func (a *ActiveRun) addCounts(mutate func(*model.RecordCounts)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	mutate(&a.run.Counts)
}

// HasErrors reports whether any structured error has been recorded
func (a *ActiveRun) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.run.Errors) > 0
}

// Snapshot returns a copy of the run in its current state
func (a *ActiveRun) Snapshot() model.Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

// Finalize sets the end time and terminal status and persists the run.
// The run is immutable afterwards; repeated calls return the first result.
func (a *ActiveRun) Finalize(status model.RunStatus) (*model.Run, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		r := a.copyLocked()
		return &r, nil
	}

	end := a.tracker.now().UTC()
	a.run.EndTime = &end
	a.run.Status = status
	a.finalized = true

	if err := a.tracker.store.UpdateRun(a.run); err != nil {
		log.WithError(err).WithField("run", a.run.ID).Error("failed to persist finalized run")
		r := a.copyLocked()
		return &r, errors.Wrap(err, "persist run result")
	}
	r := a.copyLocked()
	return &r, nil
}

func (a *ActiveRun) copyLocked() model.Run {
	r := *a.run
	r.Log = append([]string(nil), a.run.Log...)
	r.Errors = append([]model.RunError(nil), a.run.Errors...)
	if a.run.EndTime != nil {
		t := *a.run.EndTime
		r.EndTime = &t
	}
	return r
}
