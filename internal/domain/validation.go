package domain

// ValidationErrorType classifies why a record failed validation.
type ValidationErrorType string

const (
	ErrorTypeRequired     ValidationErrorType = "REQUIRED"
	ErrorTypeFormat       ValidationErrorType = "FORMAT"
	ErrorTypeRange        ValidationErrorType = "RANGE"
	ErrorTypeReference    ValidationErrorType = "REFERENCE"
	ErrorTypeBusinessRule ValidationErrorType = "BUSINESS_RULE"
	ErrorTypeDuplicate    ValidationErrorType = "DUPLICATE"
)

// ValidationSeverity distinguishes row-level failures from signals strong
// enough to trigger rollback evaluation.
type ValidationSeverity string

const (
	SeverityError    ValidationSeverity = "ERROR"
	SeverityCritical ValidationSeverity = "CRITICAL"
)

// ValidationError describes a single failed check on a record field.
type ValidationError struct {
	Row       int                 `json:"row"`
	Field     string              `json:"field"`
	Value     string              `json:"value"`
	Message   string              `json:"message"`
	ErrorType ValidationErrorType `json:"error_type"`
	Severity  ValidationSeverity  `json:"severity"`
}

// ValidationWarning flags suspicious but not disqualifying data.
type ValidationWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationResult is produced per entity type per validation pass. New runs
// produce new results; results are never merged destructively.
type ValidationResult struct {
	IsValid          bool                `json:"is_valid"`
	Errors           []ValidationError   `json:"errors"`
	Warnings         []ValidationWarning `json:"warnings"`
	DataQualityScore int                 `json:"data_quality_score"`
	ProcessedCount   int                 `json:"processed_count"`
	ErrorCount       int                 `json:"error_count"`
	WarningCount     int                 `json:"warning_count"`
}

// HasCritical reports whether any collected error carries CRITICAL severity.
func (r ValidationResult) HasCritical() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ErrorsForRow filters the collected errors down to one source row.
func (r ValidationResult) ErrorsForRow(row int) []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Row == row {
			out = append(out, e)
		}
	}
	return out
}
