package mapper

import (
	"fmt"
	"sort"

	"stageflow/dao/model"
)

// Result is the outcome of mapping one source row.
type Result struct {
	Fields map[string]any    `json:"fields"`
	Errors []model.FieldError `json:"errors"`
}

// Valid reports whether the row mapped without any field-level failure.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// ApplyMappings maps one spreadsheet row onto record fields. Mappings
// are applied in OrderIndex order; a failing field contributes a
// field-level error and the rest of the row is still processed, so one
// bad cell never hides the other problems in the same row.
func ApplyMappings(mappings []model.FieldMapping, row map[string]string) Result {
	ordered := make([]model.FieldMapping, len(mappings))
	copy(ordered, mappings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	res := Result{Fields: make(map[string]any, len(ordered))}
	for _, m := range ordered {
		raw, present := row[m.SourceField]
		if (!present || raw == "") && m.DefaultValue != nil {
			raw = *m.DefaultValue
		}
		if raw == "" {
			if m.Required {
				res.Errors = append(res.Errors, model.FieldError{
					Field:   m.SourceField,
					Message: "required field is empty",
				})
			}
			continue
		}

		if m.ValidationRule != "" {
			if err := Validate(m.ValidationRule, raw); err != nil {
				res.Errors = append(res.Errors, model.FieldError{
					Field:   m.SourceField,
					Message: err.Error(),
				})
				continue
			}
		}

		var value any = raw
		if m.Transformation != "" {
			transformed, err := Transform(m.Transformation, raw)
			if err != nil {
				res.Errors = append(res.Errors, model.FieldError{
					Field:   m.SourceField,
					Message: err.Error(),
				})
				continue
			}
			value = transformed
		}
		res.Fields[m.TargetField] = value
	}
	return res
}

// ColumnSummary reports how the source header row lines up with a
// mapping set: which columns a mapping recognizes, which are unmapped,
// and which mapped required columns the file is missing.
type ColumnSummary struct {
	Recognized      []string `json:"recognized"`
	Unmapped        []string `json:"unmapped"`
	MissingRequired []string `json:"missingRequired"`
}

func SummarizeColumns(mappings []model.FieldMapping, headers []string) ColumnSummary {
	bySource := make(map[string]model.FieldMapping, len(mappings))
	for _, m := range mappings {
		bySource[m.SourceField] = m
	}

	summary := ColumnSummary{}
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
		if _, ok := bySource[h]; ok {
			summary.Recognized = append(summary.Recognized, h)
		} else {
			summary.Unmapped = append(summary.Unmapped, h)
		}
	}
	for _, m := range mappings {
		if m.Required && m.DefaultValue == nil && !seen[m.SourceField] {
			summary.MissingRequired = append(summary.MissingRequired, m.SourceField)
		}
	}
	return summary
}

// CheckConfiguration reports configuration errors in a mapping set:
// references to unregistered transforms or rules, and duplicated
// (targetTable, sourceField) pairs. Used by the test-mapping endpoint
// so an administrator can sanity-check before an import run.
func CheckConfiguration(mappings []model.FieldMapping) []model.FieldError {
	var errs []model.FieldError
	type key struct{ table, source string }
	seen := make(map[key]bool, len(mappings))
	for _, m := range mappings {
		if m.Transformation != "" && !KnownTransform(m.Transformation) {
			errs = append(errs, model.FieldError{
				Field:   m.SourceField,
				Message: fmt.Sprintf("unknown transformation %q", m.Transformation),
			})
		}
		if m.ValidationRule != "" && !KnownRule(m.ValidationRule) {
			errs = append(errs, model.FieldError{
				Field:   m.SourceField,
				Message: fmt.Sprintf("unknown validation rule %q", m.ValidationRule),
			})
		}
		k := key{m.TargetTable, m.SourceField}
		if seen[k] {
			errs = append(errs, model.FieldError{
				Field:   m.SourceField,
				Message: fmt.Sprintf("duplicated source field for table %q", m.TargetTable),
			})
		}
		seen[k] = true
	}
	return errs
}
