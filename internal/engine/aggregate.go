package engine

import (
	"strings"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/pkg/utils"
)

type group struct {
	keys    model.Record
	records []model.Record
}

// applyAggregate groups records by the configured fields and emits one record
// per group: the group-by keys plus one field per configured aggregation.
// Group order follows first appearance in the input.
func applyAggregate(cfg model.AggregateConfig, recs []model.Record) []model.Record {
	groups := make(map[string]*group)
	var order []string

	for _, rec := range recs {
		key := groupKey(cfg.GroupBy, rec)
		g, ok := groups[key]
		if !ok {
			keys := make(model.Record, len(cfg.GroupBy))
			for _, f := range cfg.GroupBy {
				keys[f] = rec[f]
			}
			g = &group{keys: keys}
			groups[key] = g
			order = append(order, key)
		}
		g.records = append(g.records, rec)
	}

	out := make([]model.Record, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		result := g.keys.Clone()
		for _, agg := range cfg.Aggregations {
			result[targetField(agg)] = aggregate(agg, g.records)
		}
		out = append(out, result)
	}
	return out
}

func groupKey(fields []string, rec model.Record) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = utils.Stringify(rec[f])
	}
	return strings.Join(parts, "\x00")
}

func targetField(agg model.Aggregation) string {
	if agg.Target != "" {
		return agg.Target
	}
	return agg.Field + "_" + string(agg.Function)
}

func aggregate(agg model.Aggregation, recs []model.Record) interface{} {
	switch agg.Function {
	case model.AggCount:
		return len(recs)
	case model.AggSum:
		sum, _ := fold(agg.Field, recs)
		return sum
	case model.AggAvg:
		sum, n := fold(agg.Field, recs)
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	case model.AggMin:
		return extremum(agg.Field, recs, func(a, b float64) bool { return a < b })
	case model.AggMax:
		return extremum(agg.Field, recs, func(a, b float64) bool { return a > b })
	case model.AggFirst:
		for _, rec := range recs {
			if v, ok := rec[agg.Field]; ok {
				return v
			}
		}
		return nil
	case model.AggLast:
		for i := len(recs) - 1; i >= 0; i-- {
			if v, ok := recs[i][agg.Field]; ok {
				return v
			}
		}
		return nil
	case model.AggCollect:
		values := make([]interface{}, 0, len(recs))
		for _, rec := range recs {
			if v, ok := rec[agg.Field]; ok {
				values = append(values, v)
			}
		}
		return values
	default:
		return nil
	}
}

// fold sums the numeric values of a field, counting how many contributed
func fold(field string, recs []model.Record) (float64, int) {
	var sum float64
	var n int
	for _, rec := range recs {
		if v, ok := rec[field]; ok {
			if f, numeric := utils.Numeric(v); numeric {
				sum += f
				n++
			}
		}
	}
	return sum, n
}

func extremum(field string, recs []model.Record, better func(a, b float64) bool) interface{} {
	var best float64
	found := false
	for _, rec := range recs {
		v, ok := rec[field]
		if !ok {
			continue
		}
		f, numeric := utils.Numeric(v)
		if !numeric {
			continue
		}
		if !found || better(f, best) {
			best = f
			found = true
		}
	}
	if !found {
		return nil
	}
	return best
}
