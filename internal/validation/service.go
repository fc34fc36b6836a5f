package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// Options toggles the optional validation layers per run.
type Options struct {
	StopOnError        bool
	ValidateReferences bool
	CheckDuplicates    bool
	CalculateQuality   bool
	MinQualityScore    int
}

// DefaultOptions enables every layer and accepts any quality score.
func DefaultOptions() Options {
	return Options{
		ValidateReferences: true,
		CheckDuplicates:    true,
		CalculateQuality:   true,
	}
}

// RowRecord pairs a transformed record with its source row number.
type RowRecord struct {
	Row    int
	Record domain.Record
}

// Service runs the four validation layers over transformed records. The
// reference and duplicate caches are injected per run; the service itself
// holds no process-wide state.
type Service struct {
	rules *RuleSet
	refs  *ReferenceCache
	dups  *DuplicateCache
	opts  Options
	now   func() time.Time
}

// NewService wires a validation service. A nil rule set selects the default
// production rules.
func NewService(rules *RuleSet, refs *ReferenceCache, dups *DuplicateCache, opts Options) *Service {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Service{
		rules: rules,
		refs:  refs,
		dups:  dups,
		opts:  opts,
		now:   time.Now,
	}
}

// ValidateRow runs every enabled layer over one record. A failure in an
// earlier layer does not prevent later layers from evaluating; errors
// accumulate so the caller sees the full picture. Deterministic for identical
// inputs and caches.
func (s *Service) ValidateRow(rec domain.Record, row int) ([]domain.ValidationError, []domain.ValidationWarning) {
	var errs []domain.ValidationError
	var warnings []domain.ValidationWarning

	errs = append(errs, s.entityErrors(rec, row)...)
	errs = append(errs, s.businessErrors(rec, row)...)
	if s.opts.ValidateReferences {
		errs = append(errs, s.referenceErrors(rec, row)...)
	}
	if s.opts.CheckDuplicates {
		errs = append(errs, s.duplicateErrors(rec, row)...)
	}

	if s.opts.CalculateQuality && s.opts.MinQualityScore > 0 {
		if score := s.QualityScore(rec); score < s.opts.MinQualityScore {
			warnings = append(warnings, domain.ValidationWarning{
				Row:     row,
				Field:   "",
				Message: qualityWarning(score, s.opts.MinQualityScore),
			})
		}
	}

	return errs, warnings
}

// ValidateBatch validates a batch of records for one table. Records accepted
// earlier in the batch feed the duplicate checks of later ones through a
// batch-local cache layer; the run-wide caches are never mutated.
func (s *Service) ValidateBatch(records []RowRecord) domain.ValidationResult {
	result := domain.ValidationResult{IsValid: true}

	// Layer batch-local duplicate state over the run-wide cache.
	batchService := *s
	if s.dups != nil && s.opts.CheckDuplicates {
		batchService.dups = s.dups.Clone()
	}

	var qualitySum int
	for _, rr := range records {
		errs, warnings := batchService.ValidateRow(rr.Record, rr.Row)
		result.ProcessedCount++
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warnings...)

		if len(errs) == 0 && batchService.dups != nil {
			batchService.dups.Add(rr.Record)
		}

		if s.opts.CalculateQuality {
			qualitySum += batchService.QualityScore(rr.Record)
		}

		if len(errs) > 0 && s.opts.StopOnError {
			break
		}
	}

	result.ErrorCount = len(result.Errors)
	result.WarningCount = len(result.Warnings)
	result.IsValid = result.ErrorCount == 0

	if s.opts.CalculateQuality && result.ProcessedCount > 0 {
		result.DataQualityScore = int(math.Round(float64(qualitySum) / float64(result.ProcessedCount)))
	}

	return result
}

// RowsWithErrors returns the set of row numbers carrying at least one error,
// used by the loader to decide which rows to skip.
func RowsWithErrors(result domain.ValidationResult) map[int]bool {
	rows := make(map[int]bool, len(result.Errors))
	for _, e := range result.Errors {
		rows[e.Row] = true
	}
	return rows
}

func qualityWarning(score, minimum int) string {
	return fmt.Sprintf("data quality score %d is below the configured minimum %d", score, minimum)
}
