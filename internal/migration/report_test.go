package migration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/quality"
)

func sampleReport() *Report {
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &Report{
		MigrationID:  uuid.New(),
		WorkbookFile: "crm_export.xlsx",
		StartedAt:    started,
		FinishedAt:   started.Add(42 * time.Second),
		Exit:         ExitSuccessWithWarnings,
		Mapping: domain.MappingResult{
			OverallConfidence:   8.4,
			HighConfidenceCount: 11,
			MediumConfidence:    2,
		},
		Tables: []TableReport{
			{Table: "organizations", SourceRows: 120, Processed: 120, Loaded: 118, Skipped: 2, ErrorCount: 2, QualityScore: 93},
		},
		TopErrors: []domain.ValidationError{
			{Row: 14, Field: "email", Message: "invalid email address", ErrorType: domain.ErrorTypeFormat, Severity: domain.SeverityError},
		},
		QualityTrends: []QualityTrend{
			{Table: "organizations", Trend: quality.TrendDegrading, Scores: []int{95, 90, 82}},
		},
	}
}

func TestReportMarkdown(t *testing.T) {
	md := sampleReport().Markdown()

	assert.Contains(t, md, "# Migration report")
	assert.Contains(t, md, "- Outcome: success_with_warnings")
	assert.Contains(t, md, "## Mapping confidence")
	assert.Contains(t, md, "8.4/10 (11 high, 2 medium, 0 low)")
	assert.Contains(t, md, "| organizations | 120 | 118 | 2 | 2 | 93 |")
	assert.Contains(t, md, "row 14, email: invalid email address")
	assert.Contains(t, md, "## Quality trends")
	assert.Contains(t, md, "- organizations: degrading (batch scores: 95, 90, 82)")
}

func TestReportJSONRoundTrip(t *testing.T) {
	report := sampleReport()

	out, err := report.JSON()
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, report.MigrationID, decoded.MigrationID)
	assert.Equal(t, report.Exit, decoded.Exit)
	assert.Len(t, decoded.Tables, 1)
	assert.Equal(t, report.QualityTrends, decoded.QualityTrends)
}

func TestCapErrorsKeepsCriticalFirst(t *testing.T) {
	var errs []domain.ValidationError
	for i := 0; i < 8; i++ {
		errs = append(errs, domain.ValidationError{Row: i, Severity: domain.SeverityError})
	}
	errs = append(errs, domain.ValidationError{Row: 99, Severity: domain.SeverityCritical})

	capped := capErrors(errs, 5)
	require.Len(t, capped, 5)
	assert.Equal(t, domain.SeverityCritical, capped[0].Severity)
	assert.Equal(t, 99, capped[0].Row)
}
