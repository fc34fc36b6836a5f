package migration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/quality"
)

// ExitCondition classifies how a run ended.
type ExitCondition string

const (
	ExitSuccess             ExitCondition = "success"
	ExitSuccessWithWarnings ExitCondition = "success_with_warnings"
	ExitFailure             ExitCondition = "failure"
	ExitAborted             ExitCondition = "aborted"
	ExitRolledBack          ExitCondition = "rolled_back"
)

// topErrorLimit caps the error listing in the rendered report.
const topErrorLimit = 10

// TableReport summarizes one target table's outcome.
type TableReport struct {
	Table            string  `json:"table"`
	SourceRows       int     `json:"source_rows"`
	Processed        int     `json:"processed"`
	Loaded           int     `json:"loaded"`
	Skipped          int     `json:"skipped"`
	ErrorCount       int     `json:"error_count"`
	WarningCount     int     `json:"warning_count"`
	QualityScore     int     `json:"quality_score"`
	Confidence       float64 `json:"confidence"`
	ShortfallFlagged bool    `json:"shortfall_flagged"`
}

// QualityTrend summarizes the direction of one table's batch quality scores.
type QualityTrend struct {
	Table  string        `json:"table"`
	Trend  quality.Trend `json:"trend"`
	Scores []int         `json:"scores"`
}

// Report is the structured outcome of a migration run, renderable as markdown
// and as JSON.
type Report struct {
	MigrationID   uuid.UUID                `json:"migration_id"`
	WorkbookFile  string                   `json:"workbook_file"`
	DryRun        bool                     `json:"dry_run"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at"`
	Exit          ExitCondition            `json:"exit"`
	Reason        string                   `json:"reason,omitempty"`
	Mapping       domain.MappingResult     `json:"mapping"`
	Tables        []TableReport            `json:"tables"`
	TopErrors     []domain.ValidationError `json:"top_errors,omitempty"`
	QualityAlerts []quality.Alert          `json:"quality_alerts,omitempty"`
	QualityTrends []QualityTrend           `json:"quality_trends,omitempty"`
	Strategy      *domain.RollbackStrategy `json:"rollback_strategy,omitempty"`
	Rollback      *domain.RollbackResult   `json:"rollback,omitempty"`
}

// JSON renders the machine-readable form of the report.
func (r *Report) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return out, nil
}

// Markdown renders the human-readable form of the report.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Migration report %s\n\n", r.MigrationID)
	fmt.Fprintf(&b, "- Workbook: %s\n", r.WorkbookFile)
	fmt.Fprintf(&b, "- Outcome: %s\n", r.Exit)
	if r.Reason != "" {
		fmt.Fprintf(&b, "- Reason: %s\n", r.Reason)
	}
	if r.DryRun {
		b.WriteString("- Dry run: no records were persisted\n")
	}
	fmt.Fprintf(&b, "- Duration: %s\n\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(&b, "## Mapping confidence\n\n")
	fmt.Fprintf(&b, "- Overall: %.1f/10 (%d high, %d medium, %d low)\n",
		r.Mapping.OverallConfidence,
		r.Mapping.HighConfidenceCount,
		r.Mapping.MediumConfidence,
		r.Mapping.LowConfidenceCount)
	if r.Mapping.RequiresHumanReview {
		b.WriteString("- Requires human review before loading\n")
	}
	for _, sheet := range r.Mapping.UnmappedSheets {
		fmt.Fprintf(&b, "- Unmapped sheet: %s\n", sheet)
	}
	b.WriteString("\n")

	if len(r.Tables) > 0 {
		b.WriteString("## Tables\n\n")
		b.WriteString("| Table | Source rows | Loaded | Skipped | Errors | Quality |\n")
		b.WriteString("|-------|-------------|--------|---------|--------|---------|\n")
		for _, t := range r.Tables {
			flag := ""
			if t.ShortfallFlagged {
				flag = " ⚠"
			}
			fmt.Fprintf(&b, "| %s | %d | %d%s | %d | %d | %d |\n",
				t.Table, t.SourceRows, t.Loaded, flag, t.Skipped, t.ErrorCount, t.QualityScore)
		}
		b.WriteString("\n")
	}

	if len(r.TopErrors) > 0 {
		b.WriteString("## Top validation errors\n\n")
		for _, e := range r.TopErrors {
			fmt.Fprintf(&b, "- row %d, %s: %s [%s/%s]\n", e.Row, e.Field, e.Message, e.ErrorType, e.Severity)
		}
		b.WriteString("\n")
	}

	if len(r.QualityTrends) > 0 {
		b.WriteString("## Quality trends\n\n")
		for _, qt := range r.QualityTrends {
			fmt.Fprintf(&b, "- %s: %s (batch scores: %s)\n", qt.Table, qt.Trend, formatScores(qt.Scores))
		}
		b.WriteString("\n")
	}

	if len(r.QualityAlerts) > 0 {
		b.WriteString("## Quality alerts\n\n")
		for _, a := range r.QualityAlerts {
			fmt.Fprintf(&b, "- %s: %s\n", a.Table, a.Message)
		}
		b.WriteString("\n")
	}

	if r.Strategy != nil {
		b.WriteString("## Rollback recommendation\n\n")
		fmt.Fprintf(&b, "- Strategy: %s (confidence %.1f)\n", r.Strategy.Type, r.Strategy.Confidence)
		fmt.Fprintf(&b, "- Reason: %s\n", r.Strategy.Reason)
		if r.Rollback != nil {
			fmt.Fprintf(&b, "- Executed: %d records removed across %s in %s\n",
				r.Rollback.RecordsAffected,
				strings.Join(r.Rollback.TablesAffected, ", "),
				r.Rollback.Duration.Round(time.Millisecond))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func snapshotScores(snaps []quality.Snapshot) []int {
	out := make([]int, len(snaps))
	for i, s := range snaps {
		out[i] = s.Score
	}
	return out
}

func formatScores(scores []int) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ", ")
}

// capErrors keeps the first limit errors, CRITICAL first.
func capErrors(errs []domain.ValidationError, limit int) []domain.ValidationError {
	if len(errs) <= limit {
		return errs
	}
	out := make([]domain.ValidationError, 0, limit)
	for _, e := range errs {
		if e.Severity == domain.SeverityCritical {
			out = append(out, e)
			if len(out) == limit {
				return out
			}
		}
	}
	for _, e := range errs {
		if e.Severity != domain.SeverityCritical {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
