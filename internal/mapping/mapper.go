package mapping

import (
	"sort"
	"strings"

	"github.com/crmigrate/crmigrate/internal/domain"
)

const (
	// sampleLimit caps the number of values scored per column.
	sampleLimit = 20
)

// Override is a caller-supplied mapping accepted without scoring.
type Override struct {
	Sheet       string
	SourceField string
	TargetField string
}

// Mapper produces table mappings for a workbook analysis.
type Mapper struct {
	tables []TargetTable
}

// NewMapper returns a mapper over the default target schema.
func NewMapper() *Mapper {
	return &Mapper{tables: TargetTables()}
}

// MapWorkbook maps every sheet in the analysis onto a target table. Sheets
// with no plausible target are reported as unmapped, never fatal. Overrides
// are applied after scoring and always win.
func (m *Mapper) MapWorkbook(analysis domain.WorkbookAnalysis, overrides []Override) domain.MappingResult {
	result := domain.MappingResult{}
	usedTables := map[string]bool{}

	for _, sheet := range analysis.Sheets {
		table, ok := m.inferTargetTable(sheet, usedTables)
		if !ok {
			result.UnmappedSheets = append(result.UnmappedSheets, sheet.Name)
			continue
		}
		usedTables[table.Name] = true

		tm := m.mapSheet(sheet, table)
		for _, o := range overrides {
			if o.Sheet == sheet.Name {
				AcceptMapping(&tm, o.SourceField, o.TargetField)
			}
		}
		result.TableMappings = append(result.TableMappings, tm)
	}

	result.Summarize()
	return result
}

// inferTargetTable matches the sheet name against table keywords first, then
// falls back to header contents.
func (m *Mapper) inferTargetTable(sheet domain.SheetAnalysis, used map[string]bool) (TargetTable, bool) {
	for _, table := range m.tables {
		if used[table.Name] {
			continue
		}
		if table.matchesKeyword(sheet.Name) {
			return table, true
		}
	}

	headerText := strings.Join(sheet.Headers, " ")
	for _, table := range m.tables {
		if used[table.Name] {
			continue
		}
		if table.matchesKeyword(headerText) {
			return table, true
		}
	}

	return TargetTable{}, false
}

// mapSheet scores every source header against every still-unused target field
// and keeps the best candidate at or above the acceptance floor. Greedy
// bipartite matching; ties broken by score, then target name for determinism.
func (m *Mapper) mapSheet(sheet domain.SheetAnalysis, table TargetTable) domain.TableMapping {
	tm := domain.TableMapping{
		SourceSheet:    sheet.Name,
		TargetTable:    table.Name,
		HeaderRowIndex: sheet.HeaderRowIndex,
	}

	usedTargets := map[string]bool{}
	for _, header := range sheet.Headers {
		samples := sheet.SamplesFor(header, sampleLimit)
		if len(samples) > tm.SampleRowsInspected {
			tm.SampleRowsInspected = len(samples)
		}

		best := domain.FieldMapping{}
		found := false
		for _, field := range table.Fields {
			if usedTargets[field.Name] {
				continue
			}
			candidate := Score(header, field.Name, samples, field.Type)
			if !found ||
				candidate.Confidence > best.Confidence ||
				(candidate.Confidence == best.Confidence && candidate.TargetField < best.TargetField) {
				best = candidate
				found = true
			}
		}

		if !found || best.Confidence < domain.AcceptConfidenceFloor {
			tm.UnmappedSource = append(tm.UnmappedSource, header)
			continue
		}

		usedTargets[best.TargetField] = true
		tm.Upsert(best)
	}

	for _, field := range table.Fields {
		if !usedTargets[field.Name] {
			tm.UnmappedTarget = append(tm.UnmappedTarget, field.Name)
		}
	}
	sort.Strings(tm.UnmappedTarget)

	tm.Confidence = aggregateConfidence(tm.FieldMappings)
	return tm
}

// AcceptMapping records a manual mapping decision, bypassing scoring. Any
// previously accepted mapping for the target field is superseded.
func AcceptMapping(tm *domain.TableMapping, sourceField, targetField string) {
	manual := domain.FieldMapping{
		SourceField:       sourceField,
		TargetField:       targetField,
		Confidence:        10,
		Reasons:           []string{"manual"},
		DataTypeMatch:     true,
		SemanticMatch:     true,
		PatternMatch:      true,
		BusinessRuleMatch: true,
	}

	replaced := false
	for i, fm := range tm.FieldMappings {
		if fm.TargetField == targetField {
			tm.FieldMappings[i] = manual
			replaced = true
			break
		}
	}
	if !replaced {
		tm.FieldMappings = append(tm.FieldMappings, manual)
	}

	// The source column is no longer unmapped, nor is the target field.
	tm.UnmappedSource = removeString(tm.UnmappedSource, sourceField)
	tm.UnmappedTarget = removeString(tm.UnmappedTarget, targetField)
	tm.Confidence = aggregateConfidence(tm.FieldMappings)
}

func aggregateConfidence(mappings []domain.FieldMapping) float64 {
	if len(mappings) == 0 {
		return 0
	}
	var sum float64
	for _, fm := range mappings {
		sum += fm.Confidence
	}
	return sum / float64(len(mappings))
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
