// Package alert evaluates run outcomes and system events against alert rules
// and maintains the alert lifecycle (active/acknowledged/resolved/silenced).
package alert

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

// Defaults for the built-in rules, overridable per rule
const (
	DefaultMaxDuration = 30 * time.Minute
	DefaultMinRecords  = 100
)

// Manager owns the alert collection and the configured alert rules
type Manager struct {
	mu    sync.RWMutex
	store *store.Store
	rules []model.AlertRule
	now   func() time.Time
}

// New returns a manager with the built-in default rules installed
func New(s *store.Store) *Manager {
	return &Manager{
		store: s,
		rules: DefaultRules(),
		now:   time.Now,
	}
}

// WithClock overrides the time source, for tests
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// DefaultRules is the built-in rule set: job failure, duration threshold,
// low record count. ScheduleMissed alerts are raised by the scheduler path.
func DefaultRules() []model.AlertRule {
	return []model.AlertRule{
		{ID: "builtin-failure", Type: model.AlertRuleJobFailure, Enabled: true, Severity: model.SeverityError},
		{ID: "builtin-duration", Type: model.AlertRuleJobDuration, Enabled: true, Severity: model.SeverityWarning, MaxDuration: DefaultMaxDuration},
		{ID: "builtin-records", Type: model.AlertRuleRecordCount, Enabled: true, Severity: model.SeverityWarning, MinRecords: DefaultMinRecords},
	}
}

// SetRules replaces the configured rule set
func (m *Manager) SetRules(rules []model.AlertRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
}

// Rules returns a copy of the configured rule set
func (m *Manager) Rules() []model.AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.AlertRule(nil), m.rules...)
}

// EvaluateRun applies the configured rules to a finalized run. Each matching
// rule creates exactly one alert; duplicate suppression is not automatic.
// A rule whose evaluation fails is logged and does not abort the rest.
func (m *Manager) EvaluateRun(run *model.Run, job *model.Job) []*model.Alert {
	var created []*model.Alert
	for _, rule := range m.Rules() {
		if !rule.Enabled {
			continue
		}
		if rule.JobID != "" && rule.JobID != job.ID {
			continue
		}

		a, err := m.evaluateRule(rule, run, job)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"rule": rule.ID, "run": run.ID}).
				Warn("alert rule evaluation failed")
			continue
		}
		if a == nil {
			continue
		}
		if err := m.raise(a); err != nil {
			log.WithError(err).WithField("rule", rule.ID).Warn("failed to persist alert")
			continue
		}
		created = append(created, a)
	}
	return created
}

func (m *Manager) evaluateRule(rule model.AlertRule, run *model.Run, job *model.Job) (*model.Alert, error) {
	switch rule.Type {
	case model.AlertRuleJobFailure:
		if run.Status != model.RunStatusFailed {
			return nil, nil
		}
		return m.build(rule.Severity, model.CategoryJobFailure,
			fmt.Sprintf("Job %q failed", job.Name),
			fmt.Sprintf("run finished with %d errors", len(run.Errors)),
			job.ID, run.ID), nil

	case model.AlertRuleJobDuration:
		threshold := rule.MaxDuration
		if threshold <= 0 {
			threshold = DefaultMaxDuration
		}
		if run.EndTime == nil || run.Duration() <= threshold {
			return nil, nil
		}
		return m.build(rule.Severity, model.CategoryPerformance,
			fmt.Sprintf("Job %q exceeded duration threshold", job.Name),
			fmt.Sprintf("run took %s, threshold %s", run.Duration(), threshold),
			job.ID, run.ID), nil

	case model.AlertRuleRecordCount:
		min := rule.MinRecords
		if min <= 0 {
			min = DefaultMinRecords
		}
		if run.Counts.Loaded >= min {
			return nil, nil
		}
		return m.build(rule.Severity, model.CategoryDataQuality,
			fmt.Sprintf("Job %q loaded fewer records than expected", job.Name),
			fmt.Sprintf("loaded %d records, expected at least %d", run.Counts.Loaded, min),
			job.ID, run.ID), nil

	case model.AlertRuleScheduleMissed:
		// raised through RaiseScheduleMissed, not per-run evaluation
		return nil, nil

	default:
		return nil, errors.Errorf("unknown alert rule type: %s", rule.Type)
	}
}

// RaiseScheduleMissed records that a job's expected fire did not occur
func (m *Manager) RaiseScheduleMissed(job *model.Job, expected time.Time, reason string) (*model.Alert, error) {
	a := m.build(model.SeverityWarning, model.CategoryScheduleMissed,
		fmt.Sprintf("Job %q missed its schedule", job.Name),
		fmt.Sprintf("expected fire at %s: %s", expected.Format(time.RFC3339), reason),
		job.ID, "")
	if err := m.raise(a); err != nil {
		return nil, err
	}
	return a, nil
}

// EvaluateSystemEvent creates an alert from a non-run condition
func (m *Manager) EvaluateSystemEvent(ev model.SystemEvent) (*model.Alert, error) {
	a := m.build(ev.Severity, ev.Category, ev.Title, ev.Message, ev.JobID, "")
	if err := m.raise(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Audit emits an info-level system alert for a mutating operation
func (m *Manager) Audit(operation, entity, id string) {
	a := m.build(model.SeverityInfo, model.CategorySystem,
		fmt.Sprintf("%s %s", operation, entity),
		fmt.Sprintf("%s %s %s", entity, id, operation), "", "")
	if err := m.raise(a); err != nil {
		log.WithError(err).Warn("failed to persist audit alert")
	}
}

func (m *Manager) build(severity model.Severity, category model.AlertCategory, title, message, jobID, runID string) *model.Alert {
	now := m.now().UTC()
	return &model.Alert{
		ID:        uuid.New().String(),
		Severity:  severity,
		Category:  category,
		Title:     title,
		Message:   message,
		State:     model.AlertStateActive,
		JobID:     jobID,
		RunID:     runID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *Manager) raise(a *model.Alert) error {
	return m.store.InsertAlert(a)
}

// Alerts returns alerts matching the filter
func (m *Manager) Alerts(f store.AlertFilter) ([]*model.Alert, error) {
	return m.store.GetAlerts(f)
}

// Acknowledge transitions an alert to acknowledged
func (m *Manager) Acknowledge(id string) error {
	return m.store.UpdateAlertState(id, model.AlertStateAcknowledged, nil, m.now().UTC())
}

// Resolve transitions an alert to resolved
func (m *Manager) Resolve(id string) error {
	return m.store.UpdateAlertState(id, model.AlertStateResolved, nil, m.now().UTC())
}

// Silence silences an alert for the given number of minutes
func (m *Manager) Silence(id string, minutes int) error {
	if minutes <= 0 {
		return errors.New("silence duration must be positive")
	}
	until := m.now().UTC().Add(time.Duration(minutes) * time.Minute)
	return m.store.UpdateAlertState(id, model.AlertStateSilenced, &until, m.now().UTC())
}

// ClearExpiredSilences reverts elapsed silences to active. Called by a
// periodic sweep; returns how many alerts were reactivated.
func (m *Manager) ClearExpiredSilences() (int, error) {
	expired, err := m.store.ExpiredSilences(m.now().UTC())
	if err != nil {
		return 0, err
	}
	reactivated := 0
	for _, a := range expired {
		if err := m.store.UpdateAlertState(a.ID, model.AlertStateActive, nil, m.now().UTC()); err != nil {
			log.WithError(err).WithField("alert", a.ID).Warn("failed to reactivate silenced alert")
			continue
		}
		reactivated++
	}
	return reactivated, nil
}
