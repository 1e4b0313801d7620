// Package engine applies an ordered list of transformation rules to an
// in-memory record set. The engine is stateless; custom transforms and
// enrichers come from an injected registry.
package engine

import (
	"context"

	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// CustomFunc is an externally registered transform: records in, records out
type CustomFunc func(ctx context.Context, recs []model.Record, params map[string]interface{}) ([]model.Record, error)

// EnrichFunc derives an enrichment value from a source field value
type EnrichFunc func(ctx context.Context, value interface{}) (interface{}, error)

// CheckFunc is a custom validation predicate over a field value; a non-nil
// error fails the check
type CheckFunc func(value interface{}) error

// Registry resolves named custom transforms, enrichers, and checks
type Registry struct {
	transforms map[string]CustomFunc
	enrichers  map[string]EnrichFunc
	checks     map[string]CheckFunc
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		transforms: make(map[string]CustomFunc),
		enrichers:  make(map[string]EnrichFunc),
		checks:     make(map[string]CheckFunc),
	}
}

// RegisterTransform adds a named custom transform function
func (r *Registry) RegisterTransform(name string, fn CustomFunc) {
	r.transforms[name] = fn
}

// RegisterEnricher adds a named enricher function
func (r *Registry) RegisterEnricher(name string, fn EnrichFunc) {
	r.enrichers[name] = fn
}

// RegisterCheck adds a named custom validation predicate
func (r *Registry) RegisterCheck(name string, fn CheckFunc) {
	r.checks[name] = fn
}

// RuleStatus is the outcome of one rule in the per-rule report
type RuleStatus string

const (
	RuleApplied RuleStatus = "applied"
	RuleSkipped RuleStatus = "skipped"
	RuleFailed  RuleStatus = "failed"
)

// RuleReport is the diagnostic record for one rule application
type RuleReport struct {
	RuleID   string         `json:"ruleId"`
	Name     string         `json:"name"`
	Type     model.RuleType `json:"type"`
	Status   RuleStatus     `json:"status"`
	In       int            `json:"in"`
	Out      int            `json:"out"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Engine applies transformation rules in order
type Engine struct {
	registry *Registry
}

// New returns an engine backed by the given registry (nil for an empty one)
func New(registry *Registry) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{registry: registry}
}

// Apply runs the rules strictly in the given order: the output of rule N is
// the input of rule N+1. Disabled rules are skipped but still reported.
// A failing rule aborts the remaining rules unless continueOnError is set,
// in which case the pre-rule record set passes through unchanged.
func (e *Engine) Apply(ctx context.Context, rules []model.TransformationRule, recs []model.Record, continueOnError bool) ([]model.Record, []RuleReport, error) {
	reports := make([]RuleReport, 0, len(rules))
	current := recs

	for _, rule := range rules {
		report := RuleReport{RuleID: rule.ID, Name: rule.Name, Type: rule.Type, In: len(current)}

		if err := ctx.Err(); err != nil {
			return current, reports, err
		}

		if !rule.Enabled {
			report.Status = RuleSkipped
			report.Out = len(current)
			reports = append(reports, report)
			continue
		}

		out, warnings, err := e.applyRule(ctx, rule, current)
		if err != nil {
			report.Status = RuleFailed
			report.Out = len(current)
			report.Errors = append(report.Errors, err.Error())
			reports = append(reports, report)
			if !continueOnError {
				return current, reports, errors.Wrapf(err, "rule %s (%s)", rule.Name, rule.ID)
			}
			// pre-rule records pass through unchanged to the next rule
			continue
		}

		report.Status = RuleApplied
		report.Out = len(out)
		report.Warnings = warnings
		reports = append(reports, report)
		current = out
	}

	return current, reports, nil
}

func (e *Engine) applyRule(ctx context.Context, rule model.TransformationRule, recs []model.Record) ([]model.Record, []string, error) {
	switch rule.Type {
	case model.RuleTypeFilter:
		if rule.Filter == nil {
			return nil, nil, errors.New("filter rule has no filter config")
		}
		out, err := applyFilter(*rule.Filter, recs)
		return out, nil, err
	case model.RuleTypeMap:
		if rule.Map == nil {
			return nil, nil, errors.New("map rule has no map config")
		}
		return applyMap(*rule.Map, recs), nil, nil
	case model.RuleTypeValidate:
		if rule.Validate == nil {
			return nil, nil, errors.New("validate rule has no validate config")
		}
		out, warnings := applyValidate(e.registry, *rule.Validate, recs)
		return out, warnings, nil
	case model.RuleTypeAggregate:
		if rule.Aggregate == nil {
			return nil, nil, errors.New("aggregate rule has no aggregate config")
		}
		return applyAggregate(*rule.Aggregate, recs), nil, nil
	case model.RuleTypeEnrich:
		if rule.Enrich == nil {
			return nil, nil, errors.New("enrich rule has no enrich config")
		}
		out, warnings := e.applyEnrich(ctx, *rule.Enrich, recs)
		return out, warnings, nil
	case model.RuleTypeCustom:
		if rule.Custom == nil {
			return nil, nil, errors.New("custom rule has no custom config")
		}
		fn, ok := e.registry.transforms[rule.Custom.Function]
		if !ok {
			return nil, nil, errors.Errorf("unknown custom transform: %s", rule.Custom.Function)
		}
		out, err := fn(ctx, recs, rule.Custom.Params)
		return out, nil, err
	default:
		return nil, nil, errors.Errorf("unknown rule type: %s", rule.Type)
	}
}
