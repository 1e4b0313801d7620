// Package executor orchestrates one job run: resolve sources, extract,
// transform, resolve destinations, load, finalize the run record. It enforces
// at most one in-flight run per job and the job's continue-on-error policy.
package executor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"etl-pipeline-manager/internal/engine"
	"etl-pipeline-manager/internal/gateway"
	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/tracker"
)

// ErrAlreadyRunning is returned when a run for the job is already in flight.
// The call is rejected synchronously; there is no queueing.
var ErrAlreadyRunning = errors.New("job already running")

// ErrJobDisabled is returned when executing a disabled job
var ErrJobDisabled = errors.New("job is disabled")

// Catalog resolves the source and rule references a job carries.
// *store.Store satisfies it.
type Catalog interface {
	GetDataSource(id string) (*model.DataSource, error)
	GetRule(id string) (*model.TransformationRule, error)
}

// Notifier receives every finalized run for alert evaluation
type Notifier interface {
	EvaluateRun(run *model.Run, job *model.Job) []*model.Alert
}

// Executor runs jobs. Safe for concurrent use across different jobs.
type Executor struct {
	catalog  Catalog
	gateway  *gateway.Gateway
	engine   *engine.Engine
	tracker  *tracker.Tracker
	notifier Notifier

	mu      sync.Mutex
	running map[string]bool
}

// New wires an executor
func New(catalog Catalog, gw *gateway.Gateway, eng *engine.Engine, tr *tracker.Tracker, notifier Notifier) *Executor {
	return &Executor{
		catalog:  catalog,
		gateway:  gw,
		engine:   eng,
		tracker:  tr,
		notifier: notifier,
		running:  make(map[string]bool),
	}
}

// IsRunning reports whether a run for the job is in flight
func (e *Executor) IsRunning(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[jobID]
}

// Execute performs one run of the job. Cancellation is cooperative: the
// context is checked between each source, rule, and destination step.
// The returned run always carries the final status; the error return is
// reserved for precondition failures where no run was created.
func (e *Executor) Execute(ctx context.Context, job *model.Job) (*model.Run, error) {
	if !job.Enabled {
		return nil, errors.Wrap(ErrJobDisabled, job.Name)
	}
	if !e.acquire(job.ID) {
		return nil, errors.Wrap(ErrAlreadyRunning, job.Name)
	}
	defer e.release(job.ID)

	active, err := e.tracker.Start(job.ID)
	if err != nil {
		return nil, errors.Wrap(err, "start run")
	}

	logger := log.WithFields(log.Fields{"job": job.Name, "run": active.ID()})
	logger.Info("run started")

	run := e.run(ctx, job, active)

	if e.notifier != nil {
		e.notifier.EvaluateRun(run, job)
	}
	logger.WithFields(log.Fields{
		"status":    run.Status,
		"extracted": run.Counts.Extracted,
		"loaded":    run.Counts.Loaded,
	}).Info("run finished")
	return run, nil
}

func (e *Executor) run(ctx context.Context, job *model.Job, active *tracker.ActiveRun) *model.Run {
	// extract
	records, aborted := e.extract(ctx, job, active)
	if aborted != nil {
		r, _ := active.Finalize(*aborted)
		return r
	}

	// transform
	records, aborted = e.transform(ctx, job, active, records)
	if aborted != nil {
		r, _ := active.Finalize(*aborted)
		return r
	}

	// load
	if aborted = e.load(ctx, job, active, records); aborted != nil {
		r, _ := active.Finalize(*aborted)
		return r
	}

	status := model.RunStatusSucceeded
	if active.HasErrors() {
		// any recorded error fails the run, even with partial data loaded
		status = model.RunStatusFailed
	}
	r, _ := active.Finalize(status)
	return r
}

// extract resolves every source reference and reads it sequentially.
// Returns a non-nil status to finalize with when the run must stop here.
func (e *Executor) extract(ctx context.Context, job *model.Job, active *tracker.ActiveRun) ([]model.Record, *model.RunStatus) {
	var combined []model.Record

	for _, id := range job.SourceIDs {
		if cancelled(ctx) {
			active.Logf("cancellation observed before source %s", id)
			return combined, statusPtr(model.RunStatusCancelled)
		}

		ds, err := e.catalog.GetDataSource(id)
		if err != nil {
			active.RecordError("config", id, errors.Wrap(err, "unresolved source reference"))
			if !job.ContinueOnError {
				return combined, statusPtr(model.RunStatusFailed)
			}
			continue
		}

		recs, err := e.gateway.Extract(ctx, *ds)
		if err != nil {
			active.RecordError("extract", id, err)
			if !job.ContinueOnError {
				return combined, statusPtr(model.RunStatusFailed)
			}
			continue
		}

		active.AddExtracted(len(recs))
		active.Logf("extracted %d records from %s", len(recs), ds.Name)
		combined = append(combined, recs...)
	}
	return combined, nil
}

func (e *Executor) transform(ctx context.Context, job *model.Job, active *tracker.ActiveRun, records []model.Record) ([]model.Record, *model.RunStatus) {
	if cancelled(ctx) {
		active.Logf("cancellation observed before transformation")
		return records, statusPtr(model.RunStatusCancelled)
	}

	rules := make([]model.TransformationRule, 0, len(job.RuleIDs))
	for _, id := range job.RuleIDs {
		rule, err := e.catalog.GetRule(id)
		if err != nil {
			active.RecordError("config", id, errors.Wrap(err, "unresolved rule reference"))
			if !job.ContinueOnError {
				return records, statusPtr(model.RunStatusFailed)
			}
			continue
		}
		rules = append(rules, *rule)
	}

	out, reports, err := e.engine.Apply(ctx, rules, records, job.ContinueOnError)
	for _, report := range reports {
		active.Logf("rule %s (%s): %s, %d -> %d records", report.Name, report.Type, report.Status, report.In, report.Out)
		if report.Type == model.RuleTypeValidate && report.Out < report.In {
			active.AddRejected(report.In - report.Out)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return records, statusPtr(model.RunStatusCancelled)
		}
		active.RecordError("transform", "", err)
		return records, statusPtr(model.RunStatusFailed)
	}

	active.SetTransformed(len(out))
	return out, nil
}

func (e *Executor) load(ctx context.Context, job *model.Job, active *tracker.ActiveRun, records []model.Record) *model.RunStatus {
	for _, id := range job.DestinationIDs {
		if cancelled(ctx) {
			active.Logf("cancellation observed before destination %s", id)
			return statusPtr(model.RunStatusCancelled)
		}

		ds, err := e.catalog.GetDataSource(id)
		if err != nil {
			active.RecordError("config", id, errors.Wrap(err, "unresolved destination reference"))
			if !job.ContinueOnError {
				return statusPtr(model.RunStatusFailed)
			}
			continue
		}

		n, err := e.gateway.Load(ctx, *ds, records)
		if err != nil {
			active.RecordError("load", id, err)
			if !job.ContinueOnError {
				return statusPtr(model.RunStatusFailed)
			}
			continue
		}

		active.AddLoaded(n)
		active.Logf("loaded %d records into %s", n, ds.Name)
	}
	return nil
}

func (e *Executor) acquire(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[jobID] {
		return false
	}
	e.running[jobID] = true
	return true
}

func (e *Executor) release(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, jobID)
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func statusPtr(s model.RunStatus) *model.RunStatus {
	return &s
}
