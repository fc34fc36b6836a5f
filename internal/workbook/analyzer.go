// Package workbook parses spreadsheet files into structural descriptions the
// field mapper and orchestrator consume. It has no knowledge of the target
// schema.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// ErrUnsupportedFormat is returned when the workbook extension is not handled.
var ErrUnsupportedFormat = errors.New("unsupported workbook format")

const (
	defaultSampleLimit     = 20
	defaultHeaderScanLimit = 10
	minHeaderCells         = 3
	formulaScanLimit       = 50
)

// Analyzer turns a workbook into a domain.WorkbookAnalysis snapshot.
type Analyzer struct {
	sampleLimit     int
	headerScanLimit int
}

// NewAnalyzer returns an analyzer with default sampling limits.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		sampleLimit:     defaultSampleLimit,
		headerScanLimit: defaultHeaderScanLimit,
	}
}

// AnalyzeFile opens and analyzes a workbook on disk.
func (a *Analyzer) AnalyzeFile(path string) (domain.WorkbookAnalysis, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkbookAnalysis{}, fmt.Errorf("failed to read workbook: %w", err)
	}
	return a.Analyze(bytes.NewReader(payload), filepath.Base(path))
}

// Analyze parses workbook bytes into an immutable analysis snapshot.
func (a *Analyzer) Analyze(r io.Reader, fileName string) (domain.WorkbookAnalysis, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".xlsx" && ext != ".xlsm" {
		return domain.WorkbookAnalysis{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.WorkbookAnalysis{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheetNames := f.GetSheetList()
	if len(sheetNames) == 0 {
		return domain.WorkbookAnalysis{}, errors.New("workbook has no sheets")
	}

	analysis := domain.WorkbookAnalysis{FileName: fileName}
	for _, name := range sheetNames {
		sheet, err := a.analyzeSheet(f, name)
		if err != nil {
			return domain.WorkbookAnalysis{}, fmt.Errorf("failed to analyze sheet %q: %w", name, err)
		}
		analysis.Sheets = append(analysis.Sheets, sheet)
	}

	return analysis, nil
}

func (a *Analyzer) analyzeSheet(f *excelize.File, name string) (domain.SheetAnalysis, error) {
	rows, err := f.GetRows(name)
	if err != nil {
		return domain.SheetAnalysis{}, fmt.Errorf("failed to read rows: %w", err)
	}

	sheet := domain.SheetAnalysis{
		Name:            name,
		HeaderRowIndex:  -1,
		ColumnDataTypes: map[string][]domain.TypeTag{},
		Formulas:        map[string]string{},
	}

	headerIndex := detectHeaderRow(rows, a.headerScanLimit)
	sheet.HeaderCandidates = headerCandidates(rows, a.headerScanLimit, headerIndex)
	if headerIndex < 0 {
		// No plausible header row; expose the sheet as empty so the mapper can
		// report it as unmapped instead of failing the run.
		return sheet, nil
	}

	sheet.HeaderRowIndex = headerIndex
	sheet.RawHeaders = trimRow(rows[headerIndex])
	sheet.Headers = sanitizeHeaders(rows[headerIndex])

	for _, row := range rows[headerIndex+1:] {
		if isEmptyRow(row) {
			continue
		}
		sheet.Rows = append(sheet.Rows, padRow(trimRow(row), len(sheet.Headers)))
	}
	sheet.RowCount = len(sheet.Rows)

	if len(sheet.Rows) > 0 {
		limit := a.sampleLimit
		if limit > len(sheet.Rows) {
			limit = len(sheet.Rows)
		}
		sheet.SampleRows = sheet.Rows[:limit]
	}

	for col, header := range sheet.Headers {
		values := make([]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			if col < len(row) {
				values = append(values, row[col])
			}
		}
		sheet.ColumnDataTypes[header] = InferTypeTags(values)
	}

	sheet.CandidateFKs = candidateForeignKeys(sheet.Headers)
	sheet.MergedRanges = mergedRanges(f, name)
	a.collectFormulas(f, name, &sheet)

	return sheet, nil
}

// detectHeaderRow scans the leading rows for the first one with enough
// non-empty cells to plausibly be a header.
func detectHeaderRow(rows [][]string, scanLimit int) int {
	limit := scanLimit
	if limit > len(rows) {
		limit = len(rows)
	}
	for idx := 0; idx < limit; idx++ {
		if nonEmptyCells(rows[idx]) >= minHeaderCells {
			return idx
		}
	}
	return -1
}

func headerCandidates(rows [][]string, limit, chosen int) []domain.HeaderCandidate {
	var candidates []domain.HeaderCandidate
	for idx, row := range rows {
		if idx >= limit || len(candidates) >= limit {
			break
		}
		if isEmptyRow(row) {
			continue
		}
		candidates = append(candidates, domain.HeaderCandidate{
			Index:  idx,
			Values: trimRow(row),
			Chosen: idx == chosen,
		})
	}
	return candidates
}

func nonEmptyCells(row []string) int {
	count := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			count++
		}
	}
	return count
}

func isEmptyRow(row []string) bool {
	return nonEmptyCells(row) == 0
}

func trimRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// sanitizeHeaders normalizes header labels into stable snake_case names and
// deduplicates collisions.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		for _, r := range []string{" ", ".", "-", "/", "(", ")"} {
			name = strings.ReplaceAll(name, r, "_")
		}
		for strings.Contains(name, "__") {
			name = strings.ReplaceAll(name, "__", "_")
		}
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

var fkSuffixes = []string{"_id", "_ref", "_code", "_number", "_no"}

// candidateForeignKeys flags headers whose names suggest they reference
// another table's rows.
func candidateForeignKeys(headers []string) []string {
	var out []string
	for _, h := range headers {
		if h == "id" {
			continue
		}
		for _, suffix := range fkSuffixes {
			if strings.HasSuffix(h, suffix) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

func mergedRanges(f *excelize.File, sheet string) []domain.MergedRange {
	cells, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil
	}
	var out []domain.MergedRange
	for _, mc := range cells {
		out = append(out, domain.MergedRange{
			Start: mc.GetStartAxis(),
			End:   mc.GetEndAxis(),
		})
	}
	return out
}

// collectFormulas records formulas in the leading data rows. Formula-derived
// columns are a signal the column is computed rather than source data.
func (a *Analyzer) collectFormulas(f *excelize.File, name string, sheet *domain.SheetAnalysis) {
	limit := sheet.RowCount
	if limit > formulaScanLimit {
		limit = formulaScanLimit
	}
	for rowIdx := 0; rowIdx < limit; rowIdx++ {
		for colIdx := range sheet.Headers {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, sheet.HeaderRowIndex+rowIdx+2)
			if err != nil {
				continue
			}
			formula, err := f.GetCellFormula(name, cell)
			if err != nil || formula == "" {
				continue
			}
			sheet.Formulas[cell] = formula
		}
	}
}
