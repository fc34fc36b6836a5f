package validation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// referenceErrors applies the referential integrity layer against the
// preloaded identifier caches. Dangling organization references are CRITICAL;
// other dangling references are plain errors.
func (s *Service) referenceErrors(rec domain.Record, row int) []domain.ValidationError {
	if s.refs == nil {
		return nil
	}

	switch r := rec.(type) {
	case domain.Contact:
		return s.contactReferenceErrors(r, row)
	case domain.Opportunity:
		return s.opportunityReferenceErrors(r, row)
	case domain.Interaction:
		return s.interactionReferenceErrors(r, row)
	default:
		return nil
	}
}

func (s *Service) contactReferenceErrors(c domain.Contact, row int) []domain.ValidationError {
	var errs []domain.ValidationError
	if !s.refs.Organizations[c.OrganizationID] {
		errs = append(errs, referenceError(row, "organization_id", c.OrganizationID, domain.SeverityCritical))
	}
	return errs
}

func (s *Service) opportunityReferenceErrors(o domain.Opportunity, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if !s.refs.Organizations[o.OrganizationID] {
		errs = append(errs, referenceError(row, "organization_id", o.OrganizationID, domain.SeverityCritical))
	}

	if o.ContactID != nil {
		if !s.refs.Contacts[*o.ContactID] {
			errs = append(errs, referenceError(row, "contact_id", *o.ContactID, domain.SeverityError))
		} else if owner, ok := s.refs.ContactOrg[*o.ContactID]; ok && owner != o.OrganizationID {
			errs = append(errs, domain.ValidationError{
				Row:       row,
				Field:     "contact_id",
				Value:     o.ContactID.String(),
				Message:   "assigned contact belongs to a different organization",
				ErrorType: domain.ErrorTypeReference,
				Severity:  domain.SeverityError,
			})
		}
	}

	return errs
}

func (s *Service) interactionReferenceErrors(i domain.Interaction, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if !s.refs.Organizations[i.OrganizationID] {
		errs = append(errs, referenceError(row, "organization_id", i.OrganizationID, domain.SeverityCritical))
	}
	if i.ContactID != nil && !s.refs.Contacts[*i.ContactID] {
		errs = append(errs, referenceError(row, "contact_id", *i.ContactID, domain.SeverityError))
	}
	if i.OpportunityID != nil && !s.refs.Opportunities[*i.OpportunityID] {
		errs = append(errs, referenceError(row, "opportunity_id", *i.OpportunityID, domain.SeverityError))
	}

	return errs
}

func referenceError(row int, field string, id uuid.UUID, severity domain.ValidationSeverity) domain.ValidationError {
	return domain.ValidationError{
		Row:       row,
		Field:     field,
		Value:     id.String(),
		Message:   fmt.Sprintf("%s references a record that does not exist", field),
		ErrorType: domain.ErrorTypeReference,
		Severity:  severity,
	}
}
