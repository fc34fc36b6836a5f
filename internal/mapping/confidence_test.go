package mapping

import (
	"reflect"
	"testing"

	"github.com/crmigrate/crmigrate/internal/domain"
)

func TestScorePriorityFocusColumn(t *testing.T) {
	samples := []string{"A", "B", "C", "D", "A"}

	fm := Score("priority_focus_a_d", "priority", samples, domain.FieldTypeString)

	if fm.Confidence < 8 {
		t.Fatalf("expected confidence >= 8, got %.1f", fm.Confidence)
	}
	if !fm.BusinessRuleMatch {
		t.Error("expected business rule match for A-D samples")
	}
	if !fm.DataTypeMatch {
		t.Error("expected data type match for string samples")
	}
	if !fm.SemanticMatch {
		t.Error("expected semantic match via priority synonym")
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		target  string
		samples []string
		ftype   domain.FieldType
	}{
		{"exact email", "email", "email", []string{"a@b.com", "c@d.org"}, domain.FieldTypeEmail},
		{"unrelated", "zzz_qqq", "probability", []string{"banana"}, domain.FieldTypeNumeric},
		{"empty source", "", "name", nil, domain.FieldTypeString},
		{"mixed dates", "close_date", "close_date", []string{"2026-01-15", "not a date"}, domain.FieldTypeDate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fm := Score(tc.source, tc.target, tc.samples, tc.ftype)
			if fm.Confidence < 0 || fm.Confidence > 10 {
				t.Errorf("confidence %.1f out of [0,10]", fm.Confidence)
			}
		})
	}
}

func TestScoreDataTypeFlagTracksSubScore(t *testing.T) {
	// Half the samples parse as dates, so the sub-score is 0.5 and the flag
	// must be off.
	fm := Score("close_date", "close_date", []string{"2026-01-15", "soonish"}, domain.FieldTypeDate)
	if fm.DataTypeMatch {
		t.Error("expected data type flag off at 0.5 sub-score")
	}

	fm = Score("close_date", "close_date", []string{"2026-01-15", "2026-02-01"}, domain.FieldTypeDate)
	if !fm.DataTypeMatch {
		t.Error("expected data type flag on when every sample parses")
	}
}

func TestScoreEmptySamplesAreNeutral(t *testing.T) {
	fm := Score("priority", "priority", nil, domain.FieldTypeString)

	// Exact name match plus neutral sub-scores should land mid-band, not
	// zero: a sparse column is not evidence against the mapping.
	if fm.Confidence < domain.MediumConfidenceFloor {
		t.Errorf("expected at least medium confidence for exact name with no samples, got %.1f", fm.Confidence)
	}
	if fm.BusinessRuleMatch {
		t.Error("expected business rule flag off with no samples to judge")
	}
}

func TestScoreDeterminism(t *testing.T) {
	samples := []string{"A", "C", "D"}
	first := Score("tier", "priority", samples, domain.FieldTypeString)
	second := Score("tier", "priority", samples, domain.FieldTypeString)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs produced different mappings:\n%+v\n%+v", first, second)
	}
}
