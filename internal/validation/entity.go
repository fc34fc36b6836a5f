package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// entityErrors applies the schema/domain integrity layer: required fields,
// formats, numeric ranges, enumerations and temporal bounds.
func (s *Service) entityErrors(rec domain.Record, row int) []domain.ValidationError {
	switch r := rec.(type) {
	case domain.Organization:
		return s.organizationEntityErrors(r, row)
	case domain.Contact:
		return s.contactEntityErrors(r, row)
	case domain.Opportunity:
		return s.opportunityEntityErrors(r, row)
	case domain.Interaction:
		return s.interactionEntityErrors(r, row)
	default:
		return []domain.ValidationError{{
			Row:       row,
			Message:   fmt.Sprintf("unsupported record type %T", rec),
			ErrorType: domain.ErrorTypeFormat,
			Severity:  domain.SeverityCritical,
		}}
	}
}

func (s *Service) organizationEntityErrors(org domain.Organization, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if org.Name == "" {
		errs = append(errs, requiredError(row, "name"))
	}
	if org.Priority != "" && !s.rules.validPriority(org.Priority) {
		errs = append(errs, formatError(row, "priority", string(org.Priority), "priority must be one of A, B, C, D"))
	}
	if org.Segment != "" && !s.rules.validSegment(org.Segment) {
		errs = append(errs, formatError(row, "segment", string(org.Segment), "unknown segment"))
	}
	errs = append(errs, s.formatChecks(row, []formatCheck{
		{"email", org.Email, s.rules.EmailPattern, "invalid email address"},
		{"zip", org.Zip, s.rules.ZipPattern, "zip must be 5 or 9 digits"},
		{"state", org.State, s.rules.StatePattern, "state must be a 2-letter code"},
		{"website", org.Website, s.rules.URLPattern, "invalid URL"},
	})...)
	if org.Phone != "" && !s.validPhone(org.Phone) {
		errs = append(errs, formatError(row, "phone", org.Phone,
			fmt.Sprintf("phone must contain at least %d digits", s.rules.MinPhoneDigits)))
	}
	if org.EstimatedRevenue != nil {
		if *org.EstimatedRevenue < 0 || *org.EstimatedRevenue > s.rules.MaxRevenue {
			errs = append(errs, rangeError(row, "estimated_revenue",
				fmt.Sprintf("%.2f", *org.EstimatedRevenue),
				fmt.Sprintf("estimated revenue must be between 0 and %.0f", s.rules.MaxRevenue)))
		}
	}
	if org.EmployeeCount != nil {
		if *org.EmployeeCount < 0 || *org.EmployeeCount > s.rules.MaxEmployees {
			errs = append(errs, rangeError(row, "employee_count",
				fmt.Sprintf("%d", *org.EmployeeCount),
				fmt.Sprintf("employee count must be between 0 and %d", s.rules.MaxEmployees)))
		}
	}

	return errs
}

func (s *Service) contactEntityErrors(c domain.Contact, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if c.FirstName == "" {
		errs = append(errs, requiredError(row, "first_name"))
	}
	errs = append(errs, s.formatChecks(row, []formatCheck{
		{"email", c.Email, s.rules.EmailPattern, "invalid email address"},
	})...)
	if c.Phone != "" && !s.validPhone(c.Phone) {
		errs = append(errs, formatError(row, "phone", c.Phone,
			fmt.Sprintf("phone must contain at least %d digits", s.rules.MinPhoneDigits)))
	}

	return errs
}

func (s *Service) opportunityEntityErrors(o domain.Opportunity, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if o.Name == "" {
		errs = append(errs, requiredError(row, "name"))
	}
	if o.Stage != "" && !s.rules.validStage(o.Stage) {
		errs = append(errs, formatError(row, "stage", string(o.Stage), "unknown pipeline stage"))
	}
	if o.Probability < 0 || o.Probability > s.rules.MaxProbability {
		errs = append(errs, rangeError(row, "probability",
			fmt.Sprintf("%d", o.Probability),
			fmt.Sprintf("probability must be between 0 and %d", s.rules.MaxProbability)))
	}
	if o.Value < 0 {
		errs = append(errs, rangeError(row, "value",
			fmt.Sprintf("%.2f", o.Value), "value cannot be negative"))
	}
	if o.CloseDate != nil {
		horizon := s.now().Add(s.rules.MaxCloseDateHorizon)
		if o.CloseDate.After(horizon) {
			errs = append(errs, rangeError(row, "close_date",
				o.CloseDate.Format(time.DateOnly),
				"close date is more than 2 years in the future"))
		}
	}

	return errs
}

func (s *Service) interactionEntityErrors(i domain.Interaction, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if i.Type == "" {
		errs = append(errs, requiredError(row, "type"))
	} else if !s.rules.validInteractionType(i.Type) {
		errs = append(errs, formatError(row, "type", string(i.Type), "unknown interaction type"))
	}

	if i.OccurredAt.IsZero() {
		errs = append(errs, requiredError(row, "occurred_at"))
	} else {
		now := s.now()
		if i.OccurredAt.After(now) {
			errs = append(errs, rangeError(row, "occurred_at",
				i.OccurredAt.Format(time.RFC3339), "interaction date cannot be in the future"))
		}
		if i.OccurredAt.Before(now.Add(-s.rules.MaxInteractionAge)) {
			errs = append(errs, rangeError(row, "occurred_at",
				i.OccurredAt.Format(time.RFC3339), "interaction date is more than 5 years in the past"))
		}
	}

	return errs
}

type formatCheck struct {
	field   string
	value   string
	pattern *regexp.Regexp
	message string
}

func (s *Service) formatChecks(row int, checks []formatCheck) []domain.ValidationError {
	var errs []domain.ValidationError
	for _, check := range checks {
		if check.value == "" {
			continue
		}
		if !check.pattern.MatchString(check.value) {
			errs = append(errs, formatError(row, check.field, check.value, check.message))
		}
	}
	return errs
}

func (s *Service) validPhone(phone string) bool {
	if !s.rules.PhonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= s.rules.MinPhoneDigits
}

func requiredError(row int, field string) domain.ValidationError {
	return domain.ValidationError{
		Row:       row,
		Field:     field,
		Message:   fmt.Sprintf("required field %q is missing", field),
		ErrorType: domain.ErrorTypeRequired,
		Severity:  domain.SeverityError,
	}
}

func formatError(row int, field, value, message string) domain.ValidationError {
	return domain.ValidationError{
		Row:       row,
		Field:     field,
		Value:     value,
		Message:   message,
		ErrorType: domain.ErrorTypeFormat,
		Severity:  domain.SeverityError,
	}
}

func rangeError(row int, field, value, message string) domain.ValidationError {
	return domain.ValidationError{
		Row:       row,
		Field:     field,
		Value:     value,
		Message:   message,
		ErrorType: domain.ErrorTypeRange,
		Severity:  domain.SeverityError,
	}
}
