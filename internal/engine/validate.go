package engine

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"time"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/pkg/utils"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// applyValidate checks every record against the configured field checks.
// With FailOnError true a failing record is dropped; otherwise it passes
// through and the failure is recorded as a warning.
func applyValidate(reg *Registry, cfg model.ValidateConfig, recs []model.Record) ([]model.Record, []string) {
	var warnings []string
	out := make([]model.Record, 0, len(recs))

	for i, rec := range recs {
		failure := checkRecord(reg, cfg.Checks, rec)
		if failure == "" {
			out = append(out, rec)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("record %d: %s", i, failure))
		if !cfg.FailOnError {
			out = append(out, rec)
		}
	}
	return out, warnings
}

// checkRecord returns the first failing check's description, or ""
func checkRecord(reg *Registry, checks []model.ValidationCheck, rec model.Record) string {
	for _, check := range checks {
		value, present := rec[check.Field]

		if check.Type == model.CheckRequired {
			if !present || value == nil {
				return fmt.Sprintf("missing required field %s", check.Field)
			}
			continue
		}
		if !present || value == nil {
			// non-required checks only apply when the field is present
			continue
		}

		if msg := checkValue(reg, check, value); msg != "" {
			return msg
		}
	}
	return ""
}

func checkValue(reg *Registry, check model.ValidationCheck, value interface{}) string {
	s := utils.Stringify(value)

	switch check.Type {
	case model.CheckEmail:
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Sprintf("field %s is not a valid email: %q", check.Field, s)
		}
	case model.CheckURL:
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Sprintf("field %s is not a valid url: %q", check.Field, s)
		}
	case model.CheckNumber, model.CheckFloat:
		if _, ok := utils.Numeric(value); !ok {
			return fmt.Sprintf("field %s is not numeric: %q", check.Field, s)
		}
	case model.CheckInteger:
		switch value.(type) {
		case int, int32, int64:
			return ""
		}
		f, ok := utils.Numeric(value)
		if !ok || f != float64(int64(f)) {
			return fmt.Sprintf("field %s is not an integer: %q", check.Field, s)
		}
	case model.CheckDate:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return ""
			}
		}
		return fmt.Sprintf("field %s is not a date: %q", check.Field, s)
	case model.CheckRegex:
		re, err := regexp.Compile(check.Pattern)
		if err != nil {
			return fmt.Sprintf("field %s has invalid pattern %q", check.Field, check.Pattern)
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("field %s does not match %q: %q", check.Field, check.Pattern, s)
		}
	case model.CheckCustom:
		fn, ok := reg.checks[check.Function]
		if !ok {
			return fmt.Sprintf("field %s uses unknown custom check %q", check.Field, check.Function)
		}
		if err := fn(value); err != nil {
			return fmt.Sprintf("field %s failed check %q: %s", check.Field, check.Function, err)
		}
	}
	return ""
}
