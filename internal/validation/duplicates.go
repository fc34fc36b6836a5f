package validation

import (
	"fmt"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// duplicateErrors applies the uniqueness layer against the duplicate cache.
func (s *Service) duplicateErrors(rec domain.Record, row int) []domain.ValidationError {
	if s.dups == nil {
		return nil
	}

	switch r := rec.(type) {
	case domain.Organization:
		return s.organizationDuplicateErrors(r, row)
	case domain.Contact:
		return s.contactDuplicateErrors(r, row)
	default:
		return nil
	}
}

func (s *Service) organizationDuplicateErrors(org domain.Organization, row int) []domain.ValidationError {
	var errs []domain.ValidationError

	if org.Name != "" && s.dups.OrgNames[normalizeKey(org.Name)] {
		errs = append(errs, duplicateError(row, "name", org.Name,
			fmt.Sprintf("organization named %q already exists", org.Name)))
	}
	if org.Email != "" && s.dups.OrgEmails[normalizeKey(org.Email)] {
		errs = append(errs, duplicateError(row, "email", org.Email,
			fmt.Sprintf("organization email %q already exists", org.Email)))
	}

	return errs
}

func (s *Service) contactDuplicateErrors(c domain.Contact, row int) []domain.ValidationError {
	if c.IsPrimary && s.dups.PrimaryContacts[c.OrganizationID] {
		return []domain.ValidationError{duplicateError(row, "is_primary", c.FullName(),
			"organization already has a primary contact")}
	}
	return nil
}

func duplicateError(row int, field, value, message string) domain.ValidationError {
	return domain.ValidationError{
		Row:       row,
		Field:     field,
		Value:     value,
		Message:   message,
		ErrorType: domain.ErrorTypeDuplicate,
		Severity:  domain.SeverityError,
	}
}
