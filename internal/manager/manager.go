// Package manager is the coordinating facade: it owns the catalog of jobs,
// data sources, and transformation rules, and wires scheduling, execution,
// run tracking, and alerting together behind one API.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"etl-pipeline-manager/internal/alert"
	"etl-pipeline-manager/internal/engine"
	"etl-pipeline-manager/internal/executor"
	"etl-pipeline-manager/internal/gateway"
	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/schedule"
	"etl-pipeline-manager/internal/scheduler"
	"etl-pipeline-manager/internal/store"
	"etl-pipeline-manager/internal/tracker"
)

// ErrReferenced is returned when deleting an entity a job still references
var ErrReferenced = errors.New("entity is referenced by a job")

// ErrJobRunning is returned when mutating a job with a run in flight
var ErrJobRunning = errors.New("job has a run in flight")

// Manager wires the subsystems and guards catalog consistency
type Manager struct {
	store     *store.Store
	gateway   *gateway.Gateway
	registry  *engine.Registry
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	alerts    *alert.Manager
	tracker   *tracker.Tracker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New assembles a manager on the given store. The clock is injected into the
// scheduler; pass nil for wall time.
func New(s *store.Store, clock scheduler.Clock, healthTTL time.Duration) *Manager {
	m := &Manager{
		store:    s,
		gateway:  gateway.New(healthTTL),
		registry: engine.NewRegistry(),
		alerts:   alert.New(s),
		tracker:  tracker.New(s),
		cancels:  make(map[string]context.CancelFunc),
	}
	m.gateway.Register(model.SourceTypeMemory, gateway.NewMemoryConnector())
	m.gateway.Register(model.SourceTypeFile, gateway.NewFileConnector())
	m.gateway.Register(model.SourceTypeAPI, gateway.NewAPIConnector())
	m.gateway.Register(model.SourceTypeDatabase, gateway.NewSQLConnector())
	m.executor = executor.New(s, m.gateway, engine.New(m.registry), m.tracker, m.alerts)
	m.scheduler = scheduler.New(clock, m.fireScheduled, m.scheduleMissed)
	return m
}

// Gateway exposes the data source gateway for connector registration
func (m *Manager) Gateway() *gateway.Gateway { return m.gateway }

// Registry exposes the transform registry for custom function registration
func (m *Manager) Registry() *engine.Registry { return m.registry }

// Alerts exposes the alert manager
func (m *Manager) Alerts() *alert.Manager { return m.alerts }

// Close stops timers and background caches. In-flight runs are cancelled.
func (m *Manager) Close() {
	m.scheduler.Stop()
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.gateway.Close()
}

// ---- jobs ----

// CreateJob validates references, assigns identity, and persists the job
func (m *Manager) CreateJob(j *model.Job) (*model.Job, error) {
	if err := m.validateJob(j); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	j.ID = uuid.New().String()
	j.Status = model.JobStatusIdle
	j.CreatedAt = now
	j.UpdatedAt = now
	if err := m.store.SaveJob(j); err != nil {
		return nil, err
	}
	m.alerts.Audit("created", "job", j.ID)
	return j, nil
}

// UpdateJob replaces a job's definition. Rejected while a run is in flight.
// A scheduled job is re-armed against the updated schedule.
func (m *Manager) UpdateJob(j *model.Job) (*model.Job, error) {
	existing, err := m.store.GetJob(j.ID)
	if err != nil {
		return nil, err
	}
	if m.executor.IsRunning(j.ID) {
		return nil, errors.Wrap(ErrJobRunning, existing.Name)
	}
	if err := m.validateJob(j); err != nil {
		return nil, err
	}

	j.CreatedAt = existing.CreatedAt
	j.Status = existing.Status
	j.LastRunAt = existing.LastRunAt
	j.UpdatedAt = time.Now().UTC()

	if _, wasArmed := m.scheduler.NextFire(j.ID); wasArmed {
		m.scheduler.Unschedule(j.ID)
		j.Status = model.JobStatusIdle
		j.NextRunAt = nil
		if j.Schedule != nil && j.Enabled {
			next, err := m.scheduler.Schedule(j)
			if err != nil {
				log.WithError(err).WithField("job", j.ID).Warn("updated job could not be re-armed")
			} else {
				j.Status = model.JobStatusScheduled
				j.NextRunAt = &next
			}
		}
	}

	if err := m.store.SaveJob(j); err != nil {
		return nil, err
	}
	m.alerts.Audit("updated", "job", j.ID)
	return j, nil
}

// DeleteJob removes a job. Rejected while a run is in flight; any armed
// schedule is cancelled first. Run history is kept.
func (m *Manager) DeleteJob(id string) error {
	job, err := m.store.GetJob(id)
	if err != nil {
		return err
	}
	if m.executor.IsRunning(id) {
		return errors.Wrap(ErrJobRunning, job.Name)
	}
	m.scheduler.Unschedule(id)
	if err := m.store.DeleteJob(id); err != nil {
		return err
	}
	m.alerts.Audit("deleted", "job", id)
	return nil
}

// SetJobEnabled flips the job's enabled flag. Disabling cancels any armed
// schedule; an in-flight run is left to finish.
func (m *Manager) SetJobEnabled(id string, enabled bool) (*model.Job, error) {
	job, err := m.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	job.Enabled = enabled
	if !enabled {
		m.scheduler.Unschedule(id)
		job.Status = model.JobStatusIdle
		job.NextRunAt = nil
	}
	job.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveJob(job); err != nil {
		return nil, err
	}
	m.alerts.Audit(auditVerb(enabled), "job", id)
	return job, nil
}

// Job returns one job by id
func (m *Manager) Job(id string) (*model.Job, error) { return m.store.GetJob(id) }

// Jobs returns all jobs
func (m *Manager) Jobs() ([]*model.Job, error) { return m.store.ListJobs() }

func (m *Manager) validateJob(j *model.Job) error {
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if len(j.SourceIDs) == 0 {
		return errors.New("job needs at least one source")
	}
	if len(j.DestinationIDs) == 0 {
		return errors.New("job needs at least one destination")
	}
	for _, id := range append(append([]string{}, j.SourceIDs...), j.DestinationIDs...) {
		if _, err := m.store.GetDataSource(id); err != nil {
			return errors.Wrapf(err, "data source %s", id)
		}
	}
	for _, id := range j.RuleIDs {
		if _, err := m.store.GetRule(id); err != nil {
			return errors.Wrapf(err, "transformation rule %s", id)
		}
	}
	if j.Schedule != nil {
		if err := schedule.Validate(*j.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ---- execution ----

// ExecuteJob triggers one run of a job and blocks until it finishes.
// The run can be cancelled through CancelJob.
func (m *Manager) ExecuteJob(ctx context.Context, jobID string) (*model.Run, error) {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	// Claim the cancel slot first: a second concurrent call must not touch
	// the in-flight run's cancel handle or its persisted status.
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if _, inFlight := m.cancels[jobID]; inFlight {
		m.mu.Unlock()
		cancel()
		return nil, errors.Wrap(executor.ErrAlreadyRunning, job.Name)
	}
	m.cancels[jobID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, jobID)
		m.mu.Unlock()
	}()

	m.setJobStatus(job, model.JobStatusRunning, nil)
	run, err := m.executor.Execute(runCtx, job)
	if err != nil {
		m.restoreIdleStatus(job)
		return nil, err
	}

	last := run.StartTime
	job.LastRunAt = &last
	m.setJobStatus(job, terminalJobStatus(run.Status), job.LastRunAt)
	return run, nil
}

// CancelJob requests cooperative cancellation of the job's in-flight run.
// Reports whether a run was in flight.
func (m *Manager) CancelJob(jobID string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// IsRunning reports whether the job has a run in flight
func (m *Manager) IsRunning(jobID string) bool { return m.executor.IsRunning(jobID) }

// Runs returns run history, optionally narrowed to one job
func (m *Manager) Runs(jobID string) ([]*model.Run, error) { return m.tracker.Runs(jobID) }

// RunHistory returns runs matching the filter, newest first
func (m *Manager) RunHistory(f store.RunFilter) ([]*model.Run, error) { return m.store.GetRuns(f) }

// PruneRuns deletes runs that started before the cutoff
func (m *Manager) PruneRuns(before time.Time) (int64, error) { return m.store.PruneRuns(before) }

// Run returns one run by id
func (m *Manager) Run(id string) (*model.Run, error) { return m.tracker.Run(id) }

// ---- scheduling ----

// ScheduleJob arms the job's recurrence and marks it scheduled
func (m *Manager) ScheduleJob(jobID string) (time.Time, error) {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return time.Time{}, err
	}
	if !job.Enabled {
		return time.Time{}, errors.Wrap(executor.ErrJobDisabled, job.Name)
	}

	next, err := m.scheduler.Schedule(job)
	if err != nil {
		return time.Time{}, err
	}

	job.Status = model.JobStatusScheduled
	job.NextRunAt = &next
	job.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveJob(job); err != nil {
		return time.Time{}, err
	}
	m.alerts.Audit("scheduled", "job", jobID)
	return next, nil
}

// UnscheduleJob cancels the job's armed recurrence. An in-flight run finishes.
func (m *Manager) UnscheduleJob(jobID string) error {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return err
	}
	m.scheduler.Unschedule(jobID)

	job.Status = model.JobStatusIdle
	job.NextRunAt = nil
	job.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveJob(job); err != nil {
		return err
	}
	m.alerts.Audit("unscheduled", "job", jobID)
	return nil
}

// ResumeSchedules re-arms every enabled job persisted in the scheduled state.
// Called once at startup.
func (m *Manager) ResumeSchedules() {
	jobs, err := m.store.ListJobs()
	if err != nil {
		log.WithError(err).Error("failed to list jobs for schedule resume")
		return
	}
	for _, job := range jobs {
		if job.Status != model.JobStatusScheduled || !job.Enabled || job.Schedule == nil {
			continue
		}
		next, err := m.scheduler.Schedule(job)
		if err != nil {
			log.WithError(err).WithField("job", job.ID).Warn("persisted schedule could not be resumed")
			job.Status = model.JobStatusIdle
			job.NextRunAt = nil
		} else {
			job.NextRunAt = &next
		}
		if err := m.store.SaveJob(job); err != nil {
			log.WithError(err).WithField("job", job.ID).Warn("failed to persist resumed schedule")
		}
	}
}

// fireScheduled is the scheduler hand-off: refuse synchronously when a run is
// already in flight, otherwise mark the job queued and execute asynchronously.
func (m *Manager) fireScheduled(jobID string, firedAt time.Time) error {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if !job.Enabled {
		return errors.Wrap(executor.ErrJobDisabled, job.Name)
	}
	if m.executor.IsRunning(jobID) {
		return errors.Wrap(executor.ErrAlreadyRunning, job.Name)
	}

	m.setJobStatus(job, model.JobStatusQueued, nil)
	go func() {
		if _, err := m.ExecuteJob(context.Background(), jobID); err != nil {
			log.WithError(err).WithField("job", jobID).Warn("scheduled run failed to start")
		}
	}()
	return nil
}

// scheduleMissed runs after the scheduler has dropped the job's timer: raise
// the alert and bring the persisted job back to idle so the operator sees the
// recurrence is no longer armed.
func (m *Manager) scheduleMissed(jobID string, expected time.Time, reason string) {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		job = &model.Job{ID: jobID, Name: jobID}
	} else {
		m.setJobStatus(job, model.JobStatusIdle, nil)
	}
	if _, err := m.alerts.RaiseScheduleMissed(job, expected, reason); err != nil {
		log.WithError(err).WithField("job", jobID).Warn("failed to raise schedule-missed alert")
	}
}

// setJobStatus persists a status transition, keeping NextRunAt in sync with
// the scheduler's armed timer.
func (m *Manager) setJobStatus(job *model.Job, status model.JobStatus, lastRunAt *time.Time) {
	job.Status = status
	if lastRunAt != nil {
		job.LastRunAt = lastRunAt
	}
	if next, ok := m.scheduler.NextFire(job.ID); ok {
		job.NextRunAt = &next
		if status == model.JobStatusSucceeded || status == model.JobStatusFailed ||
			status == model.JobStatusCancelled || status == model.JobStatusIdle {
			job.Status = model.JobStatusScheduled
		}
	} else if status != model.JobStatusRunning && status != model.JobStatusQueued {
		job.NextRunAt = nil
	}
	job.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveJob(job); err != nil {
		log.WithError(err).WithField("job", job.ID).Warn("failed to persist job status")
	}
}

func (m *Manager) restoreIdleStatus(job *model.Job) {
	m.setJobStatus(job, model.JobStatusIdle, nil)
}

func terminalJobStatus(s model.RunStatus) model.JobStatus {
	switch s {
	case model.RunStatusSucceeded:
		return model.JobStatusSucceeded
	case model.RunStatusCancelled:
		return model.JobStatusCancelled
	default:
		return model.JobStatusFailed
	}
}
