package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmigrate/crmigrate/internal/domain"
)

func makeOrg(migrationID uuid.UUID, name string, confidence float64, createdAt time.Time) domain.Organization {
	return domain.Organization{
		ID:          uuid.New(),
		MigrationID: migrationID,
		Name:        name,
		Priority:    domain.PriorityB,
		Active:      true,
		Confidence:  confidence,
		CreatedAt:   createdAt,
	}
}

func TestCreateManySkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	migrationID := uuid.New()
	now := time.Now().UTC()

	first := makeOrg(migrationID, "Acme Restaurant Group", 8.0, now)
	shadow := makeOrg(migrationID, "ACME RESTAURANT GROUP", 8.0, now)
	other := makeOrg(migrationID, "Blue Harbor Seafood", 8.0, now)

	inserted, err := store.CreateMany(ctx, domain.TableOrganizations, []domain.Record{first, shadow, other}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	count, err := store.Count(ctx, domain.TableOrganizations)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCreateManyRejectsDuplicatesWhenStrict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	migrationID := uuid.New()
	now := time.Now().UTC()

	_, err := store.CreateMany(ctx, domain.TableOrganizations,
		[]domain.Record{makeOrg(migrationID, "Acme", 8.0, now)}, false)
	require.NoError(t, err)

	_, err = store.CreateMany(ctx, domain.TableOrganizations,
		[]domain.Record{makeOrg(migrationID, "acme", 8.0, now)}, false)
	assert.Error(t, err)
}

func TestCreateManyRejectsWrongTable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	_, err := store.CreateMany(ctx, domain.TableContacts,
		[]domain.Record{makeOrg(uuid.New(), "Acme", 8.0, time.Now().UTC())}, true)
	assert.Error(t, err)
}

func TestContactDuplicateScopedToOrganization(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	orgA, orgB := uuid.New(), uuid.New()

	contact := func(org uuid.UUID, email string) domain.Contact {
		return domain.Contact{ID: uuid.New(), OrganizationID: org, FirstName: "Dana", Email: email}
	}

	inserted, err := store.CreateMany(ctx, domain.TableContacts, []domain.Record{
		contact(orgA, "dana@acme.example"),
		contact(orgA, "DANA@acme.example"),
		contact(orgB, "dana@acme.example"),
	}, true)
	require.NoError(t, err)

	// Same email under a different organization is not a duplicate.
	assert.Equal(t, 2, inserted)
}

func TestFindFirstNotFound(t *testing.T) {
	store := NewMemoryRecordStore()

	_, err := store.FindFirst(context.Background(), domain.TableOrganizations, Filter{"name": "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindManyFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	runA, runB := uuid.New(), uuid.New()
	now := time.Now().UTC()

	_, err := store.CreateMany(ctx, domain.TableOrganizations, []domain.Record{
		makeOrg(runA, "Acme Restaurant Group", 9.0, now),
		makeOrg(runA, "Blue Harbor Seafood", 4.0, now),
		makeOrg(runB, "Cedar Valley Distribution", 4.0, now),
	}, false)
	require.NoError(t, err)

	byRun, err := store.FindMany(ctx, domain.TableOrganizations, Filter{"migration_id": runA})
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	lowConfidence, err := store.FindMany(ctx, domain.TableOrganizations, Filter{
		"migration_id":  runA,
		"confidence_lt": 5.0,
	})
	require.NoError(t, err)
	require.Len(t, lowConfidence, 1)
	assert.Equal(t, "Blue Harbor Seafood", lowConfidence[0].(domain.Organization).Name)
}

func TestDeleteWhereCreatedAfter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	migrationID := uuid.New()
	cutoff := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := store.CreateMany(ctx, domain.TableOrganizations, []domain.Record{
		makeOrg(migrationID, "Before", 8.0, cutoff.Add(-time.Hour)),
		makeOrg(migrationID, "At", 8.0, cutoff),
		makeOrg(migrationID, "After", 8.0, cutoff.Add(time.Hour)),
	}, false)
	require.NoError(t, err)

	deleted, err := store.DeleteWhere(ctx, domain.TableOrganizations, Filter{
		"migration_id":  migrationID,
		"created_after": cutoff,
	})
	require.NoError(t, err)

	// Strictly after: the record stamped exactly at the cutoff survives.
	assert.Equal(t, int64(1), deleted)

	count, err := store.Count(ctx, domain.TableOrganizations)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestDeleteWhereIDIn(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	migrationID := uuid.New()
	now := time.Now().UTC()

	keep := makeOrg(migrationID, "Keep", 8.0, now)
	drop := makeOrg(migrationID, "Drop", 8.0, now)
	_, err := store.CreateMany(ctx, domain.TableOrganizations, []domain.Record{keep, drop}, false)
	require.NoError(t, err)

	deleted, err := store.DeleteWhere(ctx, domain.TableOrganizations, Filter{
		"id_in": []uuid.UUID{drop.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.FindFirst(ctx, domain.TableOrganizations, Filter{"id": keep.ID})
	assert.NoError(t, err)
}

func TestUpdateFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	org := makeOrg(uuid.New(), "Acme", 8.0, time.Now().UTC())

	_, err := store.CreateMany(ctx, domain.TableOrganizations, []domain.Record{org}, false)
	require.NoError(t, err)

	err = store.Update(ctx, domain.TableOrganizations, org.ID, map[string]any{
		"notes":  "closed in 2025",
		"active": false,
	})
	require.NoError(t, err)

	rec, err := store.FindFirst(ctx, domain.TableOrganizations, Filter{"id": org.ID})
	require.NoError(t, err)
	updated := rec.(domain.Organization)
	assert.Equal(t, "closed in 2025", updated.Notes)
	assert.False(t, updated.Active)

	err = store.Update(ctx, domain.TableOrganizations, org.ID, map[string]any{"name": "nope"})
	assert.Error(t, err, "unsupported field must be rejected")

	err = store.Update(ctx, domain.TableOrganizations, uuid.New(), map[string]any{"notes": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
