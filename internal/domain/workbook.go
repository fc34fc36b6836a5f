package domain

// TypeTag is an inferred shape for the values observed in one column.
type TypeTag string

const (
	TypeTagString  TypeTag = "string"
	TypeTagInteger TypeTag = "integer"
	TypeTagFloat   TypeTag = "float"
	TypeTagBoolean TypeTag = "boolean"
	TypeTagDate    TypeTag = "date"
	TypeTagEmail   TypeTag = "email"
	TypeTagPhone   TypeTag = "phone"
	TypeTagEmpty   TypeTag = "empty"
)

// MergedRange records a merged cell block in A1 notation.
type MergedRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HeaderCandidate is a potential header row exposed for override tooling.
type HeaderCandidate struct {
	Index  int      `json:"index"`
	Values []string `json:"values"`
	Chosen bool     `json:"chosen"`
}

// SheetAnalysis is the structural description of one worksheet. It carries no
// knowledge of the target schema.
type SheetAnalysis struct {
	Name             string               `json:"name"`
	Headers          []string             `json:"headers"`
	RawHeaders       []string             `json:"raw_headers"`
	HeaderRowIndex   int                  `json:"header_row_index"`
	HeaderCandidates []HeaderCandidate    `json:"header_candidates"`
	RowCount         int                  `json:"row_count"`
	Rows             [][]string           `json:"-"`
	SampleRows       [][]string           `json:"sample_rows"`
	ColumnDataTypes  map[string][]TypeTag `json:"column_data_types"`
	Formulas         map[string]string    `json:"formulas"`
	MergedRanges     []MergedRange        `json:"merged_ranges"`
	CandidateFKs     []string             `json:"candidate_foreign_keys"`
}

// SamplesFor returns up to limit non-empty values observed under a header.
func (s SheetAnalysis) SamplesFor(header string, limit int) []string {
	col := -1
	for i, h := range s.Headers {
		if h == header {
			col = i
			break
		}
	}
	if col < 0 {
		return nil
	}

	var samples []string
	for _, row := range s.Rows {
		if col >= len(row) || row[col] == "" {
			continue
		}
		samples = append(samples, row[col])
		if len(samples) >= limit {
			break
		}
	}
	return samples
}

// WorkbookAnalysis is an immutable snapshot of a parsed workbook, produced
// once per migration run.
type WorkbookAnalysis struct {
	FileName string          `json:"file_name"`
	Sheets   []SheetAnalysis `json:"sheets"`
}

// Sheet looks up a sheet analysis by name.
func (w WorkbookAnalysis) Sheet(name string) (SheetAnalysis, bool) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return SheetAnalysis{}, false
}
