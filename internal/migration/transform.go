package migration

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/workbook"
)

// Resolver maps the human-readable relationship values found in spreadsheets
// (organization names, contact names, opportunity names) onto the identifiers
// created earlier in the run or already present in the store.
type Resolver struct {
	mu            sync.RWMutex
	organizations map[string]uuid.UUID
	contacts      map[string]uuid.UUID
	opportunities map[string]uuid.UUID
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		organizations: map[string]uuid.UUID{},
		contacts:      map[string]uuid.UUID{},
		opportunities: map[string]uuid.UUID{},
	}
}

// Register indexes a persisted record under its lookup name.
func (r *Resolver) Register(rec domain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch v := rec.(type) {
	case domain.Organization:
		if v.Name != "" {
			r.organizations[resolverKey(v.Name)] = v.ID
		}
	case domain.Contact:
		if name := v.FullName(); name != "" {
			r.contacts[resolverKey(name)] = v.ID
		}
	case domain.Opportunity:
		if v.Name != "" {
			r.opportunities[resolverKey(v.Name)] = v.ID
		}
	}
}

// Organization resolves an organization by name, case-insensitively.
func (r *Resolver) Organization(name string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.organizations[resolverKey(name)]
	return id, ok
}

// Contact resolves a contact by full name, case-insensitively.
func (r *Resolver) Contact(name string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.contacts[resolverKey(name)]
	return id, ok
}

// Opportunity resolves an opportunity by name, case-insensitively.
func (r *Resolver) Opportunity(name string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.opportunities[resolverKey(name)]
	return id, ok
}

func resolverKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Transformer turns raw sheet rows into typed records using a confirmed table
// mapping. Coercion failures never drop a row here; the field is left empty
// and reported as a note, so validation still sees the full row.
type Transformer struct {
	migrationID uuid.UUID
	resolver    *Resolver
	now         func() time.Time
}

// NewTransformer wires a transformer for one migration run.
func NewTransformer(migrationID uuid.UUID, resolver *Resolver) *Transformer {
	return &Transformer{
		migrationID: migrationID,
		resolver:    resolver,
		now:         time.Now,
	}
}

// TransformRow builds a record for the mapping's target table from one data
// row. The returned notes name fields whose raw value could not be coerced.
func (t *Transformer) TransformRow(tm domain.TableMapping, sheet domain.SheetAnalysis, row []string) (domain.Record, []string, error) {
	rv := rowValues{mapping: tm, sheet: sheet, row: row}

	switch tm.TargetTable {
	case domain.TableOrganizations:
		return t.transformOrganization(rv)
	case domain.TableContacts:
		return t.transformContact(rv)
	case domain.TableOpportunities:
		return t.transformOpportunity(rv)
	case domain.TableInteractions:
		return t.transformInteraction(rv)
	default:
		return nil, nil, fmt.Errorf("no transformer for table %q", tm.TargetTable)
	}
}

// rowValues resolves target field names to raw cell values through the
// confirmed mapping.
type rowValues struct {
	mapping domain.TableMapping
	sheet   domain.SheetAnalysis
	row     []string
}

func (rv rowValues) value(targetField string) string {
	source, ok := rv.mapping.SourceFor(targetField)
	if !ok {
		return ""
	}
	for i, header := range rv.sheet.Headers {
		if header == source {
			if i < len(rv.row) {
				return strings.TrimSpace(rv.row[i])
			}
			return ""
		}
	}
	return ""
}

func (t *Transformer) transformOrganization(rv rowValues) (domain.Record, []string, error) {
	var notes []string
	now := t.now().UTC()

	org := domain.Organization{
		ID:          uuid.New(),
		MigrationID: t.migrationID,
		Name:        rv.value("name"),
		Priority:    domain.Priority(strings.ToUpper(rv.value("priority"))),
		Segment:     normalizeSegment(rv.value("segment")),
		Phone:       rv.value("phone"),
		Email:       rv.value("email"),
		Website:     rv.value("website"),
		AddressLine: rv.value("address_line"),
		City:        rv.value("city"),
		State:       strings.ToUpper(rv.value("state")),
		Zip:         rv.value("zip"),
		Notes:       rv.value("notes"),
		Active:      true,
		Confidence:  rv.mapping.Confidence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if raw := rv.value("estimated_revenue"); raw != "" {
		if v, err := strconv.ParseFloat(workbook.NormalizeNumeric(raw), 64); err == nil {
			org.EstimatedRevenue = &v
		} else {
			notes = append(notes, coercionNote("estimated_revenue", raw))
		}
	}
	if raw := rv.value("employee_count"); raw != "" {
		if v, err := strconv.Atoi(workbook.NormalizeNumeric(raw)); err == nil {
			org.EmployeeCount = &v
		} else {
			notes = append(notes, coercionNote("employee_count", raw))
		}
	}
	if raw := rv.value("active"); raw != "" {
		if v, ok := parseBool(raw); ok {
			org.Active = v
		} else {
			notes = append(notes, coercionNote("active", raw))
		}
	}
	if raw := rv.value("last_contacted_at"); raw != "" {
		if ts, ok := workbook.ParseDate(raw); ok {
			org.LastContactedAt = &ts
		} else {
			notes = append(notes, coercionNote("last_contacted_at", raw))
		}
	}

	return org, notes, nil
}

func (t *Transformer) transformContact(rv rowValues) (domain.Record, []string, error) {
	var notes []string
	now := t.now().UTC()

	contact := domain.Contact{
		ID:          uuid.New(),
		MigrationID: t.migrationID,
		FirstName:   rv.value("first_name"),
		LastName:    rv.value("last_name"),
		Title:       rv.value("title"),
		Email:       rv.value("email"),
		Phone:       rv.value("phone"),
		Notes:       rv.value("notes"),
		Confidence:  rv.mapping.Confidence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// A single "name" column may carry the full name.
	if contact.FirstName == "" {
		if full := rv.value("name"); full != "" {
			contact.FirstName, contact.LastName = splitName(full)
		}
	}

	// Unresolvable organization names leave a nil id; the referential
	// validation layer reports it as CRITICAL.
	if orgName := rv.value("organization"); orgName != "" {
		if id, ok := t.resolver.Organization(orgName); ok {
			contact.OrganizationID = id
		} else {
			notes = append(notes, fmt.Sprintf("organization %q not found", orgName))
		}
	}

	if raw := rv.value("is_primary"); raw != "" {
		if v, ok := parseBool(raw); ok {
			contact.IsPrimary = v
		} else {
			notes = append(notes, coercionNote("is_primary", raw))
		}
	}
	if raw := rv.value("last_contacted_at"); raw != "" {
		if ts, ok := workbook.ParseDate(raw); ok {
			contact.LastContactedAt = &ts
		} else {
			notes = append(notes, coercionNote("last_contacted_at", raw))
		}
	}

	return contact, notes, nil
}

func (t *Transformer) transformOpportunity(rv rowValues) (domain.Record, []string, error) {
	var notes []string
	now := t.now().UTC()

	opp := domain.Opportunity{
		ID:           uuid.New(),
		MigrationID:  t.migrationID,
		Name:         rv.value("name"),
		Stage:        normalizeStage(rv.value("stage")),
		ClosedReason: rv.value("closed_reason"),
		Confidence:   rv.mapping.Confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if orgName := rv.value("organization"); orgName != "" {
		if id, ok := t.resolver.Organization(orgName); ok {
			opp.OrganizationID = id
		} else {
			notes = append(notes, fmt.Sprintf("organization %q not found", orgName))
		}
	}
	if contactName := rv.value("contact"); contactName != "" {
		if id, ok := t.resolver.Contact(contactName); ok {
			opp.ContactID = &id
		} else {
			notes = append(notes, fmt.Sprintf("contact %q not found", contactName))
		}
	}

	if raw := rv.value("probability"); raw != "" {
		if v, err := strconv.ParseFloat(workbook.NormalizeNumeric(raw), 64); err == nil {
			opp.Probability = int(v)
		} else {
			notes = append(notes, coercionNote("probability", raw))
		}
	}
	if raw := rv.value("value"); raw != "" {
		if v, err := strconv.ParseFloat(workbook.NormalizeNumeric(raw), 64); err == nil {
			opp.Value = v
		} else {
			notes = append(notes, coercionNote("value", raw))
		}
	}
	if raw := rv.value("close_date"); raw != "" {
		if ts, ok := workbook.ParseDate(raw); ok {
			opp.CloseDate = &ts
		} else {
			notes = append(notes, coercionNote("close_date", raw))
		}
	}

	return opp, notes, nil
}

func (t *Transformer) transformInteraction(rv rowValues) (domain.Record, []string, error) {
	var notes []string

	interaction := domain.Interaction{
		ID:          uuid.New(),
		MigrationID: t.migrationID,
		Type:        domain.InteractionType(strings.ToUpper(rv.value("type"))),
		Subject:     rv.value("subject"),
		Notes:       rv.value("notes"),
		Confidence:  rv.mapping.Confidence,
		CreatedAt:   t.now().UTC(),
	}

	if orgName := rv.value("organization"); orgName != "" {
		if id, ok := t.resolver.Organization(orgName); ok {
			interaction.OrganizationID = id
		} else {
			notes = append(notes, fmt.Sprintf("organization %q not found", orgName))
		}
	}
	if contactName := rv.value("contact"); contactName != "" {
		if id, ok := t.resolver.Contact(contactName); ok {
			interaction.ContactID = &id
		} else {
			notes = append(notes, fmt.Sprintf("contact %q not found", contactName))
		}
	}
	if oppName := rv.value("opportunity"); oppName != "" {
		if id, ok := t.resolver.Opportunity(oppName); ok {
			interaction.OpportunityID = &id
		} else {
			notes = append(notes, fmt.Sprintf("opportunity %q not found", oppName))
		}
	}

	if raw := rv.value("occurred_at"); raw != "" {
		if ts, ok := workbook.ParseDate(raw); ok {
			interaction.OccurredAt = ts
		} else {
			notes = append(notes, coercionNote("occurred_at", raw))
		}
	}

	return interaction, notes, nil
}

// normalizeStage maps spreadsheet stage spellings onto the pipeline enum:
// "Closed Won" and "closed-won" both become CLOSED_WON.
func normalizeStage(raw string) domain.Stage {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	return domain.Stage(v)
}

func normalizeSegment(raw string) domain.Segment {
	return domain.Segment(strings.ToUpper(strings.TrimSpace(raw)))
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1", "active":
		return true, true
	case "false", "no", "n", "0", "inactive":
		return false, true
	}
	return false, false
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func coercionNote(field, raw string) string {
	return fmt.Sprintf("could not coerce %s value %q", field, raw)
}
