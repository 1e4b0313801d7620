package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// ---- data sources ----

// CreateDataSource assigns identity and persists a data source
func (m *Manager) CreateDataSource(ds *model.DataSource) (*model.DataSource, error) {
	if ds.Name == "" {
		return nil, errors.New("data source name is required")
	}
	if ds.Type == "" {
		return nil, errors.New("data source type is required")
	}
	now := time.Now().UTC()
	ds.ID = uuid.New().String()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	if err := m.store.SaveDataSource(ds); err != nil {
		return nil, err
	}
	m.alerts.Audit("created", "data source", ds.ID)
	return ds, nil
}

// UpdateDataSource replaces a data source's definition and drops its
// transient connection state so the next use reconnects fresh.
func (m *Manager) UpdateDataSource(ds *model.DataSource) (*model.DataSource, error) {
	existing, err := m.store.GetDataSource(ds.ID)
	if err != nil {
		return nil, err
	}
	ds.CreatedAt = existing.CreatedAt
	ds.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveDataSource(ds); err != nil {
		return nil, err
	}
	m.gateway.Disconnect(ds.ID)
	m.alerts.Audit("updated", "data source", ds.ID)
	return ds, nil
}

// DeleteDataSource removes a data source unless a job still references it
func (m *Manager) DeleteDataSource(id string) error {
	if _, err := m.store.GetDataSource(id); err != nil {
		return err
	}
	jobs, err := m.store.ListJobs()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.References(id) {
			return errors.Wrapf(ErrReferenced, "data source %s used by job %q", id, j.Name)
		}
	}
	if err := m.store.DeleteDataSource(id); err != nil {
		return err
	}
	m.gateway.Disconnect(id)
	m.alerts.Audit("deleted", "data source", id)
	return nil
}

// SetDataSourceEnabled flips a data source's enabled flag. A disabled source
// fails extraction and loading until re-enabled.
func (m *Manager) SetDataSourceEnabled(id string, enabled bool) (*model.DataSource, error) {
	ds, err := m.store.GetDataSource(id)
	if err != nil {
		return nil, err
	}
	ds.Enabled = enabled
	ds.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveDataSource(ds); err != nil {
		return nil, err
	}
	m.alerts.Audit(auditVerb(enabled), "data source", id)
	return ds, nil
}

// DataSource returns one data source by id
func (m *Manager) DataSource(id string) (*model.DataSource, error) {
	return m.store.GetDataSource(id)
}

// DataSources returns all data sources
func (m *Manager) DataSources() ([]*model.DataSource, error) {
	return m.store.ListDataSources()
}

// TestDataSource probes a data source's connectivity, serving cached results
// while fresh. A failed probe raises a connectivity alert.
func (m *Manager) TestDataSource(ctx context.Context, id string) (model.ConnectionStatus, error) {
	ds, err := m.store.GetDataSource(id)
	if err != nil {
		return model.ConnectionStatus{}, err
	}
	status, err := m.gateway.TestConnection(ctx, *ds)
	if err != nil {
		return model.ConnectionStatus{}, err
	}
	if !status.Success {
		if _, aerr := m.alerts.EvaluateSystemEvent(model.SystemEvent{
			Category: model.CategoryConnectivity,
			Severity: model.SeverityError,
			Title:    "Data source " + ds.Name + " unreachable",
			Message:  status.Message,
		}); aerr != nil {
			return status, nil
		}
	}
	return status, nil
}

// ---- transformation rules ----

// CreateRule assigns identity and persists a transformation rule
func (m *Manager) CreateRule(r *model.TransformationRule) (*model.TransformationRule, error) {
	if err := validateRule(r); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := m.store.SaveRule(r); err != nil {
		return nil, err
	}
	m.alerts.Audit("created", "transformation rule", r.ID)
	return r, nil
}

// UpdateRule replaces a rule's definition. Running jobs keep the rule
// snapshot they resolved at start.
func (m *Manager) UpdateRule(r *model.TransformationRule) (*model.TransformationRule, error) {
	existing, err := m.store.GetRule(r.ID)
	if err != nil {
		return nil, err
	}
	if err := validateRule(r); err != nil {
		return nil, err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveRule(r); err != nil {
		return nil, err
	}
	m.alerts.Audit("updated", "transformation rule", r.ID)
	return r, nil
}

// DeleteRule removes a rule unless a job still references it
func (m *Manager) DeleteRule(id string) error {
	if _, err := m.store.GetRule(id); err != nil {
		return err
	}
	jobs, err := m.store.ListJobs()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.UsesRule(id) {
			return errors.Wrapf(ErrReferenced, "rule %s used by job %q", id, j.Name)
		}
	}
	if err := m.store.DeleteRule(id); err != nil {
		return err
	}
	m.alerts.Audit("deleted", "transformation rule", id)
	return nil
}

// SetRuleEnabled flips a rule's enabled flag. Disabled rules are skipped by
// the engine and reported as such in run reports.
func (m *Manager) SetRuleEnabled(id string, enabled bool) (*model.TransformationRule, error) {
	r, err := m.store.GetRule(id)
	if err != nil {
		return nil, err
	}
	r.Enabled = enabled
	r.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveRule(r); err != nil {
		return nil, err
	}
	m.alerts.Audit(auditVerb(enabled), "transformation rule", id)
	return r, nil
}

// Rule returns one transformation rule by id
func (m *Manager) Rule(id string) (*model.TransformationRule, error) {
	return m.store.GetRule(id)
}

// Rules returns all transformation rules
func (m *Manager) Rules() ([]*model.TransformationRule, error) {
	return m.store.ListRules()
}

func auditVerb(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// validateRule requires the config block matching the rule type
func validateRule(r *model.TransformationRule) error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	switch r.Type {
	case model.RuleTypeFilter:
		if r.Filter == nil {
			return errors.New("filter rule requires a filter config")
		}
	case model.RuleTypeMap:
		if r.Map == nil {
			return errors.New("map rule requires a map config")
		}
	case model.RuleTypeValidate:
		if r.Validate == nil {
			return errors.New("validate rule requires a validate config")
		}
	case model.RuleTypeAggregate:
		if r.Aggregate == nil {
			return errors.New("aggregate rule requires an aggregate config")
		}
	case model.RuleTypeEnrich:
		if r.Enrich == nil {
			return errors.New("enrich rule requires an enrich config")
		}
	case model.RuleTypeCustom:
		if r.Custom == nil || r.Custom.Function == "" {
			return errors.New("custom rule requires a function name")
		}
	default:
		return errors.Errorf("unknown rule type: %s", r.Type)
	}
	return nil
}
