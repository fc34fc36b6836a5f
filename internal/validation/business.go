package validation

import (
	"fmt"
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// businessErrors applies cross-field policy checks that cannot be expressed
// as single-field schema rules.
func (s *Service) businessErrors(rec domain.Record, row int) []domain.ValidationError {
	switch r := rec.(type) {
	case domain.Organization:
		return s.organizationBusinessErrors(r, row)
	case domain.Opportunity:
		return s.opportunityBusinessErrors(r, row)
	case domain.Interaction:
		return s.interactionBusinessErrors(r, row)
	default:
		return nil
	}
}

func (s *Service) organizationBusinessErrors(org domain.Organization, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if org.Priority == domain.PriorityA {
		if org.Phone == "" && org.Email == "" {
			errs = append(errs, businessError(row, "phone",
				"high-priority organization must have a phone or email"))
		}
		if org.EstimatedRevenue == nil {
			errs = append(errs, businessError(row, "estimated_revenue",
				"high-priority organization must have an estimated revenue"))
		}
	}

	if !org.Active && org.Notes == "" {
		errs = append(errs, businessError(row, "notes",
			"inactive organization must carry an explanatory note"))
	}

	return errs
}

func (s *Service) opportunityBusinessErrors(o domain.Opportunity, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if band, ok := s.rules.StageBands[o.Stage]; ok {
		if o.Probability < band.Min || o.Probability > band.Max {
			errs = append(errs, businessError(row, "probability",
				fmt.Sprintf("probability %d%% is unusual for stage %s (expected %d-%d%%)",
					o.Probability, o.Stage, band.Min, band.Max)))
		}
	}

	if o.Stage.IsClosed() && o.ClosedReason == "" {
		errs = append(errs, businessError(row, "closed_reason",
			"closed opportunity must carry a reason"))
	}

	if o.Value > s.rules.HighValueThreshold && o.ContactID == nil {
		errs = append(errs, businessError(row, "contact_id",
			fmt.Sprintf("opportunity valued above %.0f must have an assigned contact", s.rules.HighValueThreshold)))
	}

	return errs
}

func (s *Service) interactionBusinessErrors(i domain.Interaction, row int) []domain.ValidationError {
	// Email and other remote interactions carry no time-of-day expectation.
	if !i.Type.IsInPerson() || i.OccurredAt.IsZero() {
		return nil
	}

	if s.rules.insideServiceWindow(i.OccurredAt) {
		return []domain.ValidationError{businessError(row, "occurred_at",
			fmt.Sprintf("%s at %s falls inside a service window; on-site interactions should avoid service hours",
				i.Type, i.OccurredAt.Format(time.Kitchen)))}
	}

	return nil
}

func businessError(row int, field, message string) domain.ValidationError {
	return domain.ValidationError{
		Row:       row,
		Field:     field,
		Message:   message,
		ErrorType: domain.ErrorTypeBusinessRule,
		Severity:  domain.SeverityError,
	}
}
