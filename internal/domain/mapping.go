package domain

// FieldType describes the value shape a target field expects.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumeric FieldType = "numeric"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeEmail   FieldType = "email"
	FieldTypePhone   FieldType = "phone"
)

// FieldMapping pairs a source column with a target field. Instances are
// immutable once produced; a better candidate for the same target field
// supersedes the whole value rather than mutating it.
type FieldMapping struct {
	SourceField       string   `json:"source_field"`
	TargetField       string   `json:"target_field"`
	Confidence        float64  `json:"confidence"`
	Reasons           []string `json:"reasons"`
	DataTypeMatch     bool     `json:"data_type_match"`
	SemanticMatch     bool     `json:"semantic_match"`
	PatternMatch      bool     `json:"pattern_match"`
	BusinessRuleMatch bool     `json:"business_rule_match"`
}

// TableMapping holds the accepted field mappings for one sheet/table pair.
type TableMapping struct {
	SourceSheet         string         `json:"source_sheet"`
	TargetTable         string         `json:"target_table"`
	FieldMappings       []FieldMapping `json:"field_mappings"`
	Confidence          float64        `json:"confidence"`
	UnmappedSource      []string       `json:"unmapped_source_fields"`
	UnmappedTarget      []string       `json:"unmapped_target_fields"`
	HeaderRowIndex      int            `json:"header_row_index"`
	SampleRowsInspected int            `json:"sample_rows_inspected"`
}

// MappingFor returns the accepted mapping for a target field, if any.
func (t TableMapping) MappingFor(targetField string) (FieldMapping, bool) {
	for _, fm := range t.FieldMappings {
		if fm.TargetField == targetField {
			return fm, true
		}
	}
	return FieldMapping{}, false
}

// SourceFor returns the source column mapped onto a target field.
func (t TableMapping) SourceFor(targetField string) (string, bool) {
	fm, ok := t.MappingFor(targetField)
	if !ok {
		return "", false
	}
	return fm.SourceField, true
}

// Upsert inserts a field mapping, keeping the higher-confidence candidate when
// the target field is already taken. It returns true when fm was kept.
func (t *TableMapping) Upsert(fm FieldMapping) bool {
	for i, existing := range t.FieldMappings {
		if existing.TargetField == fm.TargetField {
			if fm.Confidence > existing.Confidence {
				t.FieldMappings[i] = fm
				return true
			}
			return false
		}
	}
	t.FieldMappings = append(t.FieldMappings, fm)
	return true
}

// Confidence bands used for mapping summaries.
const (
	HighConfidenceFloor   = 8.0
	MediumConfidenceFloor = 5.0
	AcceptConfidenceFloor = 3.0
)

// MappingResult aggregates every table mapping produced for a workbook.
type MappingResult struct {
	TableMappings        []TableMapping `json:"table_mappings"`
	UnmappedSheets       []string       `json:"unmapped_sheets"`
	HighConfidenceCount  int            `json:"high_confidence_count"`
	MediumConfidence     int            `json:"medium_confidence_count"`
	LowConfidenceCount   int            `json:"low_confidence_count"`
	RequiresHumanReview  bool           `json:"requires_human_review"`
	OverallConfidence    float64        `json:"overall_confidence"`
	TotalMappedFields    int            `json:"total_mapped_fields"`
	TotalUnmappedSource  int            `json:"total_unmapped_source_fields"`
	TotalUnmappedTargets int            `json:"total_unmapped_target_fields"`
}

// Summarize recomputes the aggregate counters from the table mappings.
func (m *MappingResult) Summarize() {
	m.HighConfidenceCount = 0
	m.MediumConfidence = 0
	m.LowConfidenceCount = 0
	m.TotalMappedFields = 0
	m.TotalUnmappedSource = 0
	m.TotalUnmappedTargets = 0

	var confidenceSum float64
	for _, tm := range m.TableMappings {
		m.TotalMappedFields += len(tm.FieldMappings)
		m.TotalUnmappedSource += len(tm.UnmappedSource)
		m.TotalUnmappedTargets += len(tm.UnmappedTarget)
		for _, fm := range tm.FieldMappings {
			confidenceSum += fm.Confidence
			switch {
			case fm.Confidence >= HighConfidenceFloor:
				m.HighConfidenceCount++
			case fm.Confidence >= MediumConfidenceFloor:
				m.MediumConfidence++
			default:
				m.LowConfidenceCount++
			}
		}
	}

	if m.TotalMappedFields > 0 {
		m.OverallConfidence = confidenceSum / float64(m.TotalMappedFields)
	} else {
		m.OverallConfidence = 0
	}

	m.RequiresHumanReview = m.LowConfidenceCount > 0 ||
		(m.HighConfidenceCount > 0 && float64(m.LowConfidenceCount) > 0.2*float64(m.HighConfidenceCount))
}
