package mapping

import (
	"testing"

	"github.com/crmigrate/crmigrate/internal/domain"
)

func organizationsSheet() domain.SheetAnalysis {
	return domain.SheetAnalysis{
		Name:           "Organizations",
		HeaderRowIndex: 0,
		Headers:        []string{"company_name", "priority_focus_a_d", "phone_number", "email_address", "city"},
		Rows: [][]string{
			{"Acme Restaurant Group", "A", "(212) 555-0100", "ops@acme.example", "New York"},
			{"Blue Harbor Seafood", "B", "(415) 555-0199", "info@blueharbor.example", "San Francisco"},
			{"Cedar Valley Distribution", "C", "(303) 555-0142", "sales@cedarvalley.example", "Denver"},
		},
		RowCount: 3,
	}
}

func TestMapWorkbookOrganizations(t *testing.T) {
	analysis := domain.WorkbookAnalysis{Sheets: []domain.SheetAnalysis{organizationsSheet()}}

	result := NewMapper().MapWorkbook(analysis, nil)

	if len(result.TableMappings) != 1 {
		t.Fatalf("expected 1 table mapping, got %d", len(result.TableMappings))
	}
	tm := result.TableMappings[0]
	if tm.TargetTable != domain.TableOrganizations {
		t.Fatalf("expected organizations target, got %s", tm.TargetTable)
	}

	for _, want := range []struct{ source, target string }{
		{"company_name", "name"},
		{"priority_focus_a_d", "priority"},
		{"phone_number", "phone"},
		{"email_address", "email"},
		{"city", "city"},
	} {
		got, ok := tm.SourceFor(want.target)
		if !ok {
			t.Errorf("target %s not mapped", want.target)
			continue
		}
		if got != want.source {
			t.Errorf("target %s mapped from %s, want %s", want.target, got, want.source)
		}
	}

	fm, _ := tm.MappingFor("priority")
	if fm.Confidence < 8 {
		t.Errorf("priority mapping confidence %.1f, want >= 8", fm.Confidence)
	}
}

func TestMapSheetTargetFieldsAreUnique(t *testing.T) {
	analysis := domain.WorkbookAnalysis{Sheets: []domain.SheetAnalysis{organizationsSheet()}}

	result := NewMapper().MapWorkbook(analysis, nil)

	for _, tm := range result.TableMappings {
		seen := map[string]bool{}
		for _, fm := range tm.FieldMappings {
			if seen[fm.TargetField] {
				t.Errorf("target field %s mapped twice", fm.TargetField)
			}
			seen[fm.TargetField] = true
		}
	}
}

func TestMapWorkbookUnmappedSheet(t *testing.T) {
	analysis := domain.WorkbookAnalysis{Sheets: []domain.SheetAnalysis{{
		Name:    "Sheet3",
		Headers: []string{"alpha", "beta", "gamma"},
	}}}

	result := NewMapper().MapWorkbook(analysis, nil)

	if len(result.TableMappings) != 0 {
		t.Errorf("expected no table mappings, got %d", len(result.TableMappings))
	}
	if len(result.UnmappedSheets) != 1 || result.UnmappedSheets[0] != "Sheet3" {
		t.Errorf("expected Sheet3 reported unmapped, got %v", result.UnmappedSheets)
	}
}

func TestMapWorkbookOverrideWins(t *testing.T) {
	sheet := organizationsSheet()
	analysis := domain.WorkbookAnalysis{Sheets: []domain.SheetAnalysis{sheet}}

	result := NewMapper().MapWorkbook(analysis, []Override{
		{Sheet: "Organizations", SourceField: "city", TargetField: "notes"},
	})

	tm := result.TableMappings[0]
	fm, ok := tm.MappingFor("notes")
	if !ok {
		t.Fatal("override mapping missing")
	}
	if fm.SourceField != "city" || fm.Confidence != 10 {
		t.Errorf("override not applied as manual mapping: %+v", fm)
	}
}

func TestAcceptMappingSupersedeClearsUnmappedSource(t *testing.T) {
	tm := &domain.TableMapping{
		TargetTable: domain.TableOrganizations,
		FieldMappings: []domain.FieldMapping{
			{SourceField: "company", TargetField: "name", Confidence: 6.5},
		},
		UnmappedSource: []string{"business_name", "fax"},
	}

	AcceptMapping(tm, "business_name", "name")

	if len(tm.FieldMappings) != 1 {
		t.Fatalf("expected superseded mapping, got %d mappings", len(tm.FieldMappings))
	}
	fm := tm.FieldMappings[0]
	if fm.SourceField != "business_name" || fm.Confidence != 10 {
		t.Errorf("manual mapping not applied: %+v", fm)
	}
	for _, s := range tm.UnmappedSource {
		if s == "business_name" {
			t.Error("accepted source still listed as unmapped")
		}
	}
	if len(tm.UnmappedSource) != 1 || tm.UnmappedSource[0] != "fax" {
		t.Errorf("unexpected unmapped sources: %v", tm.UnmappedSource)
	}
	if tm.Confidence != 10 {
		t.Errorf("confidence %.1f after manual acceptance, want 10", tm.Confidence)
	}
}

func TestSummarizeFlagsHumanReview(t *testing.T) {
	result := domain.MappingResult{TableMappings: []domain.TableMapping{{
		TargetTable: domain.TableOrganizations,
		FieldMappings: []domain.FieldMapping{
			{TargetField: "name", Confidence: 9.0},
			{TargetField: "phone", Confidence: 4.2},
		},
	}}}

	result.Summarize()

	if !result.RequiresHumanReview {
		t.Error("expected human review with a low-confidence mapping present")
	}
	if result.LowConfidenceCount != 1 || result.HighConfidenceCount != 1 {
		t.Errorf("unexpected band counts: %+v", result)
	}
}
