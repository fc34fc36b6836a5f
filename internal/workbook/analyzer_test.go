package workbook

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/crmigrate/crmigrate/internal/domain"
)

func writeWorkbook(t *testing.T, build func(f *excelize.File)) string {
	t.Helper()

	f := excelize.NewFile()
	build(f)

	path := filepath.Join(t.TempDir(), "workbook.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close workbook: %v", err)
	}
	return path
}

func setRow(t *testing.T, f *excelize.File, sheet string, row int, values []any) {
	t.Helper()
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		t.Fatalf("bad coordinates: %v", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		t.Fatalf("failed to set row: %v", err)
	}
}

func TestAnalyzeFileBasicSheet(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File) {
		sheet := f.GetSheetName(0)
		setRow(t, f, sheet, 1, []any{"Customer Name", "PRIORITY-FOCUS (A-D)", "Phone Number", "Email"})
		setRow(t, f, sheet, 2, []any{"Acme Restaurant Group", "A", "(212) 555-0100", "ops@acme.example"})
		setRow(t, f, sheet, 3, []any{"Blue Harbor Seafood", "B", "(415) 555-0199", "info@blueharbor.example"})
	})

	analysis, err := NewAnalyzer().AnalyzeFile(path)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if len(analysis.Sheets) != 1 {
		t.Fatalf("expected 1 sheet, got %d", len(analysis.Sheets))
	}

	sheet := analysis.Sheets[0]
	wantHeaders := []string{"customer_name", "priority_focus_a_d", "phone_number", "email"}
	if len(sheet.Headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", sheet.Headers, wantHeaders)
	}
	for i, want := range wantHeaders {
		if sheet.Headers[i] != want {
			t.Errorf("header[%d] = %q, want %q", i, sheet.Headers[i], want)
		}
	}

	if sheet.HeaderRowIndex != 0 {
		t.Errorf("header row index = %d, want 0", sheet.HeaderRowIndex)
	}
	if sheet.RowCount != 2 {
		t.Errorf("row count = %d, want 2", sheet.RowCount)
	}

	emailTags := sheet.ColumnDataTypes["email"]
	found := false
	for _, tag := range emailTags {
		if tag == domain.TypeTagEmail {
			found = true
		}
	}
	if !found {
		t.Errorf("email column tags %v missing email tag", emailTags)
	}
}

func TestAnalyzeFileSkipsTitleRow(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File) {
		sheet := f.GetSheetName(0)
		setRow(t, f, sheet, 1, []any{"Q3 Customer Export"})
		setRow(t, f, sheet, 2, []any{"Name", "City", "State"})
		setRow(t, f, sheet, 3, []any{"Acme", "New York", "NY"})
	})

	analysis, err := NewAnalyzer().AnalyzeFile(path)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	sheet := analysis.Sheets[0]
	if sheet.HeaderRowIndex != 1 {
		t.Fatalf("header row index = %d, want 1", sheet.HeaderRowIndex)
	}
	if sheet.RowCount != 1 {
		t.Errorf("row count = %d, want 1", sheet.RowCount)
	}

	// Both the title row and the chosen header row are exposed as candidates.
	if len(sheet.HeaderCandidates) < 2 {
		t.Fatalf("expected at least 2 header candidates, got %d", len(sheet.HeaderCandidates))
	}
	chosen := 0
	for _, c := range sheet.HeaderCandidates {
		if c.Chosen {
			chosen++
			if c.Index != 1 {
				t.Errorf("chosen candidate index = %d, want 1", c.Index)
			}
		}
	}
	if chosen != 1 {
		t.Errorf("expected exactly one chosen candidate, got %d", chosen)
	}
}

func TestAnalyzeFileDeduplicatesHeaders(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File) {
		sheet := f.GetSheetName(0)
		setRow(t, f, sheet, 1, []any{"Email", "Email", "Org ID"})
		setRow(t, f, sheet, 2, []any{"a@b.example", "c@d.example", "ORG-1"})
	})

	analysis, err := NewAnalyzer().AnalyzeFile(path)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	sheet := analysis.Sheets[0]
	if sheet.Headers[0] != "email" || sheet.Headers[1] != "email_2" {
		t.Errorf("duplicate headers not deduplicated: %v", sheet.Headers)
	}

	// org_id should be flagged as a candidate foreign key.
	if len(sheet.CandidateFKs) != 1 || sheet.CandidateFKs[0] != "org_id" {
		t.Errorf("candidate FKs = %v, want [org_id]", sheet.CandidateFKs)
	}
}

func TestAnalyzeRejectsUnsupportedFormat(t *testing.T) {
	_, err := NewAnalyzer().Analyze(strings.NewReader("name,city\nAcme,NYC\n"), "export.csv")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestInferTypeTags(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   domain.TypeTag
	}{
		{"integers", []string{"1", "42", "7"}, domain.TypeTagInteger},
		{"currency", []string{"$1,200.50", "$90"}, domain.TypeTagFloat},
		{"dates", []string{"2026-01-15", "2026-02-01"}, domain.TypeTagDate},
		{"emails", []string{"a@b.example"}, domain.TypeTagEmail},
		{"booleans", []string{"yes", "no"}, domain.TypeTagBoolean},
		{"empty", nil, domain.TypeTagEmpty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tags := InferTypeTags(tc.values)
			for _, tag := range tags {
				if tag == tc.want {
					return
				}
			}
			t.Errorf("tags %v missing %s", tags, tc.want)
		})
	}
}
