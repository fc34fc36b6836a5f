package validation

import (
	"strings"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// ReferenceCache holds the identifiers already present in the target store.
// It is loaded once per run before the phase that needs it and treated as
// read-only by the validators.
type ReferenceCache struct {
	Organizations map[uuid.UUID]bool
	Contacts      map[uuid.UUID]bool
	Opportunities map[uuid.UUID]bool
	// ContactOrg maps a contact to the organization it belongs to, used for
	// the contact-belongs-to-opportunity's-organization cross check.
	ContactOrg map[uuid.UUID]uuid.UUID
}

// NewReferenceCache returns an empty cache.
func NewReferenceCache() *ReferenceCache {
	return &ReferenceCache{
		Organizations: map[uuid.UUID]bool{},
		Contacts:      map[uuid.UUID]bool{},
		Opportunities: map[uuid.UUID]bool{},
		ContactOrg:    map[uuid.UUID]uuid.UUID{},
	}
}

// Add registers a persisted record so later tables can reference it.
func (c *ReferenceCache) Add(rec domain.Record) {
	switch r := rec.(type) {
	case domain.Organization:
		c.Organizations[r.ID] = true
	case domain.Contact:
		c.Contacts[r.ID] = true
		c.ContactOrg[r.ID] = r.OrganizationID
	case domain.Opportunity:
		c.Opportunities[r.ID] = true
	}
}

// AddAll registers a batch of persisted records.
func (c *ReferenceCache) AddAll(recs []domain.Record) {
	for _, rec := range recs {
		c.Add(rec)
	}
}

// DuplicateCache holds normalized organization names and emails already in
// the store, plus which organizations already carry a primary contact.
type DuplicateCache struct {
	OrgNames        map[string]bool
	OrgEmails       map[string]bool
	PrimaryContacts map[uuid.UUID]bool
}

// NewDuplicateCache returns an empty cache.
func NewDuplicateCache() *DuplicateCache {
	return &DuplicateCache{
		OrgNames:        map[string]bool{},
		OrgEmails:       map[string]bool{},
		PrimaryContacts: map[uuid.UUID]bool{},
	}
}

// Add registers an existing record's uniqueness keys.
func (c *DuplicateCache) Add(rec domain.Record) {
	switch r := rec.(type) {
	case domain.Organization:
		if r.Name != "" {
			c.OrgNames[normalizeKey(r.Name)] = true
		}
		if r.Email != "" {
			c.OrgEmails[normalizeKey(r.Email)] = true
		}
	case domain.Contact:
		if r.IsPrimary {
			c.PrimaryContacts[r.OrganizationID] = true
		}
	}
}

// AddAll registers a batch of existing records.
func (c *DuplicateCache) AddAll(recs []domain.Record) {
	for _, rec := range recs {
		c.Add(rec)
	}
}

// Clone copies the cache so a batch can layer its own accepted records on top
// without mutating the run-wide snapshot.
func (c *DuplicateCache) Clone() *DuplicateCache {
	out := NewDuplicateCache()
	for k := range c.OrgNames {
		out.OrgNames[k] = true
	}
	for k := range c.OrgEmails {
		out.OrgEmails[k] = true
	}
	for k := range c.PrimaryContacts {
		out.PrimaryContacts[k] = true
	}
	return out
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
