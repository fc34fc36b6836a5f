package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// MemoryRecordStore is an in-memory RecordStore used by dry runs and tests.
// Safe for concurrent use.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string][]domain.Record
}

// NewMemoryRecordStore creates an empty store covering the target tables.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[string][]domain.Record{}}
}

func (s *MemoryRecordStore) CreateMany(_ context.Context, table string, records []domain.Record, skipDuplicates bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, rec := range records {
		if rec.Table() != table {
			return inserted, fmt.Errorf("record for table %s given to batch for %s", rec.Table(), table)
		}
		if s.isDuplicate(table, rec) {
			if skipDuplicates {
				continue
			}
			return inserted, fmt.Errorf("duplicate record in table %s", table)
		}
		s.records[table] = append(s.records[table], rec)
		inserted++
	}
	return inserted, nil
}

// isDuplicate mirrors the target schema's uniqueness constraints: organization
// names and the (organization, email) pair on contacts, both case-insensitive.
func (s *MemoryRecordStore) isDuplicate(table string, rec domain.Record) bool {
	switch r := rec.(type) {
	case domain.Organization:
		for _, existing := range s.records[table] {
			if org, ok := existing.(domain.Organization); ok && strings.EqualFold(org.Name, r.Name) {
				return true
			}
		}
	case domain.Contact:
		if r.Email == "" {
			return false
		}
		for _, existing := range s.records[table] {
			if c, ok := existing.(domain.Contact); ok &&
				c.OrganizationID == r.OrganizationID && strings.EqualFold(c.Email, r.Email) {
				return true
			}
		}
	}
	return false
}

func (s *MemoryRecordStore) FindMany(_ context.Context, table string, filter Filter) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Record
	for _, rec := range s.records[table] {
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryRecordStore) FindFirst(ctx context.Context, table string, filter Filter) (domain.Record, error) {
	matches, err := s.FindMany(ctx, table, filter)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return matches[0], nil
}

func (s *MemoryRecordStore) Count(_ context.Context, table string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records[table])), nil
}

func (s *MemoryRecordStore) Update(_ context.Context, table string, id uuid.UUID, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records[table] {
		if rec.RecordID() == id {
			updated, err := applyFields(rec, fields)
			if err != nil {
				return err
			}
			s.records[table][i] = updated
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryRecordStore) DeleteWhere(_ context.Context, table string, filter Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[table][:0]
	var deleted int64
	for _, rec := range s.records[table] {
		if matchesFilter(rec, filter) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records[table] = kept
	return deleted, nil
}

// matchesFilter evaluates every filter key as a conjunction.
func matchesFilter(rec domain.Record, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	values := recordValues(rec)
	for key, want := range filter {
		switch key {
		case "confidence_lt":
			conf, _ := values["confidence"].(float64)
			limit, ok := toFloat(want)
			if !ok || conf >= limit {
				return false
			}
		case "created_after":
			cutoff, ok := want.(time.Time)
			createdAt, hasCreated := values["created_at"].(time.Time)
			if !ok || !hasCreated || !createdAt.After(cutoff) {
				return false
			}
		case "id_in":
			ids, ok := want.([]uuid.UUID)
			if !ok || !containsID(ids, rec.RecordID()) {
				return false
			}
		default:
			got, ok := values[key]
			if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// recordValues exposes the filterable columns of each record type.
func recordValues(rec domain.Record) map[string]any {
	switch r := rec.(type) {
	case domain.Organization:
		return map[string]any{
			"id":           r.ID,
			"migration_id": r.MigrationID,
			"name":         r.Name,
			"email":        r.Email,
			"priority":     r.Priority,
			"segment":      r.Segment,
			"state":        r.State,
			"confidence":   r.Confidence,
			"created_at":   r.CreatedAt,
		}
	case domain.Contact:
		return map[string]any{
			"id":              r.ID,
			"migration_id":    r.MigrationID,
			"organization_id": r.OrganizationID,
			"email":           r.Email,
			"is_primary":      r.IsPrimary,
			"confidence":      r.Confidence,
			"created_at":      r.CreatedAt,
		}
	case domain.Opportunity:
		return map[string]any{
			"id":              r.ID,
			"migration_id":    r.MigrationID,
			"organization_id": r.OrganizationID,
			"name":            r.Name,
			"stage":           r.Stage,
			"confidence":      r.Confidence,
			"created_at":      r.CreatedAt,
		}
	case domain.Interaction:
		return map[string]any{
			"id":              r.ID,
			"migration_id":    r.MigrationID,
			"organization_id": r.OrganizationID,
			"type":            r.Type,
			"confidence":      r.Confidence,
			"created_at":      r.CreatedAt,
		}
	default:
		return map[string]any{}
	}
}

// applyFields supports the subset of columns the engine updates in place.
func applyFields(rec domain.Record, fields map[string]any) (domain.Record, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch r := rec.(type) {
	case domain.Organization:
		for _, k := range keys {
			switch k {
			case "notes":
				r.Notes, _ = fields[k].(string)
			case "active":
				r.Active, _ = fields[k].(bool)
			case "confidence":
				r.Confidence, _ = toFloat(fields[k])
			default:
				return nil, fmt.Errorf("unsupported update field %q for organizations", k)
			}
		}
		return r, nil
	case domain.Contact:
		for _, k := range keys {
			switch k {
			case "notes":
				r.Notes, _ = fields[k].(string)
			case "is_primary":
				r.IsPrimary, _ = fields[k].(bool)
			case "confidence":
				r.Confidence, _ = toFloat(fields[k])
			default:
				return nil, fmt.Errorf("unsupported update field %q for contacts", k)
			}
		}
		return r, nil
	default:
		return nil, fmt.Errorf("updates not supported for table %s", rec.Table())
	}
}
