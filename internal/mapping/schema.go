// Package mapping infers which spreadsheet columns feed which target fields,
// scoring every candidate pairing with a 0-10 confidence.
package mapping

import (
	"strings"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// TargetField is one column of the normalized CRM schema as seen by the
// mapper.
type TargetField struct {
	Name     string
	Type     domain.FieldType
	Required bool
}

// TargetTable describes a destination table plus the keywords used to match
// sheet names and header contents against it.
type TargetTable struct {
	Name     string
	Keywords []string
	Fields   []TargetField
}

// TargetTables returns the destination schema in referential load order.
// Relationship columns (organization, contact, opportunity) are matched as
// free text; the transformer resolves them to identifiers later.
func TargetTables() []TargetTable {
	return []TargetTable{
		{
			Name:     domain.TableOrganizations,
			Keywords: []string{"organization", "organisation", "company", "account", "customer", "client", "business"},
			Fields: []TargetField{
				{Name: "name", Type: domain.FieldTypeString, Required: true},
				{Name: "priority", Type: domain.FieldTypeString},
				{Name: "segment", Type: domain.FieldTypeString},
				{Name: "phone", Type: domain.FieldTypePhone},
				{Name: "email", Type: domain.FieldTypeEmail},
				{Name: "website", Type: domain.FieldTypeString},
				{Name: "address_line", Type: domain.FieldTypeString},
				{Name: "city", Type: domain.FieldTypeString},
				{Name: "state", Type: domain.FieldTypeString},
				{Name: "zip", Type: domain.FieldTypeString},
				{Name: "estimated_revenue", Type: domain.FieldTypeNumeric},
				{Name: "employee_count", Type: domain.FieldTypeNumeric},
				{Name: "active", Type: domain.FieldTypeBoolean},
				{Name: "notes", Type: domain.FieldTypeString},
				{Name: "last_contacted_at", Type: domain.FieldTypeDate},
			},
		},
		{
			Name:     domain.TableContacts,
			Keywords: []string{"contact", "person", "people", "staff", "buyer"},
			Fields: []TargetField{
				{Name: "organization", Type: domain.FieldTypeString, Required: true},
				{Name: "first_name", Type: domain.FieldTypeString, Required: true},
				{Name: "last_name", Type: domain.FieldTypeString},
				{Name: "title", Type: domain.FieldTypeString},
				{Name: "email", Type: domain.FieldTypeEmail},
				{Name: "phone", Type: domain.FieldTypePhone},
				{Name: "is_primary", Type: domain.FieldTypeBoolean},
				{Name: "notes", Type: domain.FieldTypeString},
				{Name: "last_contacted_at", Type: domain.FieldTypeDate},
			},
		},
		{
			Name:     domain.TableOpportunities,
			Keywords: []string{"opportunity", "opportunities", "deal", "pipeline", "sale"},
			Fields: []TargetField{
				{Name: "organization", Type: domain.FieldTypeString, Required: true},
				{Name: "contact", Type: domain.FieldTypeString},
				{Name: "name", Type: domain.FieldTypeString, Required: true},
				{Name: "stage", Type: domain.FieldTypeString},
				{Name: "probability", Type: domain.FieldTypeNumeric},
				{Name: "value", Type: domain.FieldTypeNumeric},
				{Name: "close_date", Type: domain.FieldTypeDate},
				{Name: "closed_reason", Type: domain.FieldTypeString},
			},
		},
		{
			Name:     domain.TableInteractions,
			Keywords: []string{"interaction", "activity", "activities", "touchpoint", "visit", "call", "log"},
			Fields: []TargetField{
				{Name: "organization", Type: domain.FieldTypeString, Required: true},
				{Name: "contact", Type: domain.FieldTypeString},
				{Name: "opportunity", Type: domain.FieldTypeString},
				{Name: "type", Type: domain.FieldTypeString, Required: true},
				{Name: "occurred_at", Type: domain.FieldTypeDate, Required: true},
				{Name: "subject", Type: domain.FieldTypeString},
				{Name: "notes", Type: domain.FieldTypeString},
			},
		},
	}
}

// matchesKeyword reports whether any table keyword appears in the candidate
// text after normalization.
func (t TargetTable) matchesKeyword(text string) bool {
	text = strings.ToLower(text)
	for _, kw := range t.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
