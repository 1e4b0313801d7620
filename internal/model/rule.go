package model

import "time"

// RuleType identifies the transformation a rule performs
type RuleType string

const (
	RuleTypeFilter    RuleType = "filter"
	RuleTypeMap       RuleType = "map"
	RuleTypeValidate  RuleType = "validate"
	RuleTypeAggregate RuleType = "aggregate"
	RuleTypeEnrich    RuleType = "enrich"
	RuleTypeCustom    RuleType = "custom"
)

// Operator is a filter comparison operator
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpIsNull             Operator = "is_null"
	OpIsNotNull          Operator = "is_not_null"
	OpRegex              Operator = "regex"
	OpBetween            Operator = "between"
	OpNotBetween         Operator = "not_between"
)

// Condition is a single field comparison inside a filter rule
type Condition struct {
	Field    string        `json:"field"`
	Operator Operator      `json:"operator"`
	Value    interface{}   `json:"value,omitempty"`
	Values   []interface{} `json:"values,omitempty"` // in/not_in and between/not_between
}

// FilterConfig keeps records where the combination of conditions holds
type FilterConfig struct {
	Logic      string      `json:"logic"` // "and" or "or"
	Conditions []Condition `json:"conditions"`
}

// FieldMapping maps a source field to a target field
type FieldMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// MapConfig produces a new record per input record from the mapped fields.
// With IncludeOriginal false, unmapped source fields are dropped.
type MapConfig struct {
	Mappings        []FieldMapping `json:"mappings"`
	IncludeOriginal bool           `json:"includeOriginal"`
}

// CheckType is a validation check kind
type CheckType string

const (
	CheckRequired CheckType = "required"
	CheckEmail    CheckType = "email"
	CheckURL      CheckType = "url"
	CheckNumber   CheckType = "number"
	CheckInteger  CheckType = "integer"
	CheckFloat    CheckType = "float"
	CheckDate     CheckType = "date"
	CheckRegex    CheckType = "regex"
	CheckCustom   CheckType = "custom"
)

// ValidationCheck is one field+type check inside a validate rule
type ValidationCheck struct {
	Field    string    `json:"field"`
	Type     CheckType `json:"type"`
	Pattern  string    `json:"pattern,omitempty"`  // regex check only
	Function string    `json:"function,omitempty"` // custom check only
}

// ValidateConfig drops records failing any check, or passes them through
// with a recorded warning when FailOnError is false.
type ValidateConfig struct {
	Checks      []ValidationCheck `json:"checks"`
	FailOnError bool              `json:"failOnError"`
}

// AggregateFunction is an aggregation applied per group
type AggregateFunction string

const (
	AggCount   AggregateFunction = "count"
	AggSum     AggregateFunction = "sum"
	AggAvg     AggregateFunction = "avg"
	AggMin     AggregateFunction = "min"
	AggMax     AggregateFunction = "max"
	AggFirst   AggregateFunction = "first"
	AggLast    AggregateFunction = "last"
	AggCollect AggregateFunction = "collect"
)

// Aggregation computes one function over one field, written to Target
// (defaults to "<field>_<function>" when empty)
type Aggregation struct {
	Field    string            `json:"field"`
	Function AggregateFunction `json:"function"`
	Target   string            `json:"target,omitempty"`
}

// AggregateConfig groups records by the GroupBy fields and emits one record
// per group containing the group keys plus the configured aggregations.
type AggregateConfig struct {
	GroupBy      []string      `json:"groupBy"`
	Aggregations []Aggregation `json:"aggregations"`
}

// Enrichment attaches a derived value to each record. Kind "lookup" resolves
// the source value through Table; kind "custom" calls the named registered
// enricher. A failed enrichment records a warning and leaves Target absent.
type Enrichment struct {
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Kind     string                 `json:"kind"` // "lookup" or "custom"
	Table    map[string]interface{} `json:"table,omitempty"`
	Function string                 `json:"function,omitempty"`
}

// EnrichConfig holds the enrichments applied per record
type EnrichConfig struct {
	Enrichments []Enrichment `json:"enrichments"`
}

// CustomConfig invokes a named, externally registered transform function
type CustomConfig struct {
	Function string                 `json:"function"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// TransformationRule is a single, ordered data-shaping step. Exactly one of
// the config pointers matching Type should be set. Order is a default/display
// ordering only; execution order within a job is the job's own RuleIDs list.
type TransformationRule struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      RuleType         `json:"type"`
	Order     int              `json:"order"`
	Enabled   bool             `json:"enabled"`
	Filter    *FilterConfig    `json:"filter,omitempty"`
	Map       *MapConfig       `json:"map,omitempty"`
	Validate  *ValidateConfig  `json:"validate,omitempty"`
	Aggregate *AggregateConfig `json:"aggregate,omitempty"`
	Enrich    *EnrichConfig    `json:"enrich,omitempty"`
	Custom    *CustomConfig    `json:"custom,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
