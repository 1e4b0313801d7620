package engine

import (
	"context"
	"fmt"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/pkg/utils"
)

// applyMap produces one output record per input record. With IncludeOriginal
// false the output contains only the mapped target fields; otherwise all
// original fields plus the mapped ones.
func applyMap(cfg model.MapConfig, recs []model.Record) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		var mapped model.Record
		if cfg.IncludeOriginal {
			mapped = rec.Clone()
		} else {
			mapped = make(model.Record, len(cfg.Mappings))
		}
		for _, m := range cfg.Mappings {
			if v, ok := rec[m.Source]; ok {
				mapped[m.Target] = v
			}
		}
		out = append(out, mapped)
	}
	return out
}

// applyEnrich attaches derived values per configured source->target pair.
// A failed enrichment records a warning and leaves the target field absent;
// the record itself is never dropped.
func (e *Engine) applyEnrich(ctx context.Context, cfg model.EnrichConfig, recs []model.Record) ([]model.Record, []string) {
	var warnings []string
	out := make([]model.Record, 0, len(recs))

	for i, rec := range recs {
		enriched := rec.Clone()
		for _, en := range cfg.Enrichments {
			value, ok := rec[en.Source]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("record %d: enrich source field %s absent", i, en.Source))
				continue
			}

			switch en.Kind {
			case "lookup":
				if resolved, found := en.Table[utils.Stringify(value)]; found {
					enriched[en.Target] = resolved
				} else {
					warnings = append(warnings, fmt.Sprintf("record %d: no lookup entry for %v", i, value))
				}
			case "custom":
				fn, found := e.registry.enrichers[en.Function]
				if !found {
					warnings = append(warnings, fmt.Sprintf("record %d: unknown enricher %s", i, en.Function))
					continue
				}
				resolved, err := fn(ctx, value)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("record %d: enricher %s: %v", i, en.Function, err))
					continue
				}
				enriched[en.Target] = resolved
			default:
				warnings = append(warnings, fmt.Sprintf("record %d: unknown enrichment kind %s", i, en.Kind))
			}
		}
		out = append(out, enriched)
	}
	return out, warnings
}
