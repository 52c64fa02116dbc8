package mapper

import (
	"testing"

	"stageflow/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestApplyMappingsCollectsAllFieldErrors(t *testing.T) {
	mappings := []model.FieldMapping{
		{SourceField: "Name", TargetField: "name", Required: true, OrderIndex: 0},
		{SourceField: "Budget", TargetField: "budget", Transformation: "currency-parse", OrderIndex: 1},
		{SourceField: "Start", TargetField: "start_date", Transformation: "date-parse", OrderIndex: 2},
	}
	res := ApplyMappings(mappings, map[string]string{
		"Name":   "",
		"Budget": "not-money",
		"Start":  "2026-03-15",
	})
	assert.False(t, res.Valid())
	require.Len(t, res.Errors, 2, "one bad cell must not hide the next")
	assert.Equal(t, "Name", res.Errors[0].Field)
	assert.Equal(t, "Budget", res.Errors[1].Field)
	assert.Equal(t, "2026-03-15", res.Fields["start_date"], "good cells still map")
}

func TestApplyMappingsUsesDefaultValue(t *testing.T) {
	mappings := []model.FieldMapping{
		{SourceField: "Status", TargetField: "status", Required: true, DefaultValue: strptr("draft")},
	}
	res := ApplyMappings(mappings, map[string]string{})
	assert.True(t, res.Valid())
	assert.Equal(t, "draft", res.Fields["status"])
}

func TestApplyMappingsRunsRuleBeforeTransform(t *testing.T) {
	mappings := []model.FieldMapping{
		{SourceField: "Budget", TargetField: "budget", ValidationRule: "numeric", Transformation: "currency-parse"},
	}
	res := ApplyMappings(mappings, map[string]string{"Budget": "abc"})
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "numeric")
	_, mapped := res.Fields["budget"]
	assert.False(t, mapped)
}

func TestApplyMappingsHonorsOrderIndex(t *testing.T) {
	// Two mappings write the same target field; the higher OrderIndex
	// wins regardless of slice order.
	mappings := []model.FieldMapping{
		{SourceField: "B", TargetField: "value", OrderIndex: 2},
		{SourceField: "A", TargetField: "value", OrderIndex: 1},
	}
	res := ApplyMappings(mappings, map[string]string{"A": "first", "B": "second"})
	assert.Equal(t, "second", res.Fields["value"])
}

func TestSummarizeColumns(t *testing.T) {
	mappings := []model.FieldMapping{
		{SourceField: "Name", TargetField: "name", Required: true},
		{SourceField: "Budget", TargetField: "budget", Required: true, DefaultValue: strptr("0")},
		{SourceField: "Owner", TargetField: "owner"},
	}
	s := SummarizeColumns(mappings, []string{"Name", "Extra"})
	assert.Equal(t, []string{"Name"}, s.Recognized)
	assert.Equal(t, []string{"Extra"}, s.Unmapped)
	assert.Empty(t, s.MissingRequired, "a required column with a default is not missing")

	s = SummarizeColumns(mappings, []string{"Owner"})
	assert.Equal(t, []string{"Name"}, s.MissingRequired)
}

func TestCheckConfiguration(t *testing.T) {
	mappings := []model.FieldMapping{
		{SourceField: "Name", TargetTable: "projects", Transformation: "trim"},
		{SourceField: "Name", TargetTable: "projects"},
		{SourceField: "When", TargetTable: "projects", Transformation: "time-warp"},
		{SourceField: "Who", TargetTable: "projects", ValidationRule: "psychic"},
	}
	errs := CheckConfiguration(mappings)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Message, "duplicated source field")
	assert.Contains(t, errs[1].Message, "unknown transformation")
	assert.Contains(t, errs[2].Message, "unknown validation rule")

	assert.Empty(t, CheckConfiguration(mappings[:1]))
}
