package engine

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/pkg/utils"
)

// applyFilter keeps records where the rule's conditions hold, combined with
// the rule's logic (and/or). A filter with no conditions matches nothing.
func applyFilter(cfg model.FilterConfig, recs []model.Record) ([]model.Record, error) {
	out := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		keep, err := matches(cfg, rec)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matches(cfg model.FilterConfig, rec model.Record) (bool, error) {
	if len(cfg.Conditions) == 0 {
		return false, nil
	}

	disjunction := strings.EqualFold(cfg.Logic, "or")
	for _, cond := range cfg.Conditions {
		ok, err := evaluate(cond, rec)
		if err != nil {
			return false, err
		}
		if disjunction && ok {
			return true, nil
		}
		if !disjunction && !ok {
			return false, nil
		}
	}
	return !disjunction, nil
}

func evaluate(cond model.Condition, rec model.Record) (bool, error) {
	value, present := rec[cond.Field]

	switch cond.Operator {
	case model.OpIsNull:
		return !present || value == nil, nil
	case model.OpIsNotNull:
		return present && value != nil, nil
	}

	if !present {
		return false, nil
	}

	switch cond.Operator {
	case model.OpEquals:
		return equal(value, cond.Value), nil
	case model.OpNotEquals:
		return !equal(value, cond.Value), nil
	case model.OpGreaterThan, model.OpGreaterThanOrEqual, model.OpLessThan, model.OpLessThanOrEqual:
		return compareNumeric(cond.Operator, value, cond.Value)
	case model.OpIn:
		return contains(cond.Values, value), nil
	case model.OpNotIn:
		return !contains(cond.Values, value), nil
	case model.OpContains:
		return strings.Contains(utils.Stringify(value), utils.Stringify(cond.Value)), nil
	case model.OpNotContains:
		return !strings.Contains(utils.Stringify(value), utils.Stringify(cond.Value)), nil
	case model.OpStartsWith:
		return strings.HasPrefix(utils.Stringify(value), utils.Stringify(cond.Value)), nil
	case model.OpEndsWith:
		return strings.HasSuffix(utils.Stringify(value), utils.Stringify(cond.Value)), nil
	case model.OpRegex:
		re, err := regexp.Compile(utils.Stringify(cond.Value))
		if err != nil {
			return false, errors.Wrapf(err, "invalid regex for field %s", cond.Field)
		}
		return re.MatchString(utils.Stringify(value)), nil
	case model.OpBetween, model.OpNotBetween:
		return between(cond, value)
	default:
		return false, errors.Errorf("unknown operator: %s", cond.Operator)
	}
}

// equal compares numerically when both sides coerce to numbers, otherwise
// by string rendering, so json-decoded float64s still match integer config
func equal(a, b interface{}) bool {
	fa, oka := utils.Numeric(a)
	fb, okb := utils.Numeric(b)
	if oka && okb {
		return fa == fb
	}
	return utils.Stringify(a) == utils.Stringify(b)
}

func compareNumeric(op model.Operator, value, bound interface{}) (bool, error) {
	fv, ok := utils.Numeric(value)
	if !ok {
		return false, nil
	}
	fb, ok := utils.Numeric(bound)
	if !ok {
		return false, errors.Errorf("non-numeric comparison bound: %v", bound)
	}

	switch op {
	case model.OpGreaterThan:
		return fv > fb, nil
	case model.OpGreaterThanOrEqual:
		return fv >= fb, nil
	case model.OpLessThan:
		return fv < fb, nil
	default:
		return fv <= fb, nil
	}
}

func contains(values []interface{}, v interface{}) bool {
	for _, candidate := range values {
		if equal(v, candidate) {
			return true
		}
	}
	return false
}

// between is an inclusive range check over Values[0] and Values[1]
func between(cond model.Condition, value interface{}) (bool, error) {
	if len(cond.Values) != 2 {
		return false, errors.Errorf("between on field %s requires exactly two bounds", cond.Field)
	}
	fv, ok := utils.Numeric(value)
	if !ok {
		return false, nil
	}
	lo, okLo := utils.Numeric(cond.Values[0])
	hi, okHi := utils.Numeric(cond.Values[1])
	if !okLo || !okHi {
		return false, errors.Errorf("non-numeric between bounds for field %s", cond.Field)
	}

	in := fv >= lo && fv <= hi
	if cond.Operator == model.OpNotBetween {
		return !in, nil
	}
	return in, nil
}
