package rollback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/repository"
)

func newTestManager() (*Manager, *repository.MemoryRecordStore, *repository.MemoryStateRepository) {
	store := repository.NewMemoryRecordStore()
	states := repository.NewMemoryStateRepository()
	return NewManager(store, states, zap.NewNop()), store, states
}

func seedOrganization(t *testing.T, store *repository.MemoryRecordStore, migrationID uuid.UUID, name string, confidence float64, createdAt time.Time) domain.Organization {
	t.Helper()
	org := domain.Organization{
		ID:          uuid.New(),
		MigrationID: migrationID,
		Name:        name,
		Priority:    domain.PriorityB,
		Active:      true,
		Confidence:  confidence,
		CreatedAt:   createdAt,
	}
	n, err := store.CreateMany(context.Background(), domain.TableOrganizations, []domain.Record{org}, false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return org
}

func TestDetermineRollbackStrategyLadder(t *testing.T) {
	m, _, _ := newTestManager()
	trusted := domain.MigrationCheckpoint{ID: uuid.New(), Confidence: 8.0}

	cases := []struct {
		name           string
		state          *domain.MigrationState
		wantType       domain.RollbackType
		wantConfidence float64
	}{
		{
			name: "critical error forces full rollback",
			state: &domain.MigrationState{
				Errors:          []domain.MigrationError{{Severity: domain.SeverityCriticalRun}},
				ProcessedTables: []domain.TableProgress{{Table: "organizations", Confidence: 9.5, RecordCount: 100}},
			},
			wantType:       domain.RollbackFull,
			wantConfidence: 0.9,
		},
		{
			name: "critical error outweighs a sub-threshold table error rate",
			state: &domain.MigrationState{
				Errors:          []domain.MigrationError{{Severity: domain.SeverityCriticalRun}},
				ProcessedTables: []domain.TableProgress{{Table: "organizations", Confidence: 8.5, RecordCount: 1000, ErrorCount: 150}},
			},
			wantType:       domain.RollbackFull,
			wantConfidence: 0.9,
		},
		{
			name: "unreliable mapping forces full rollback",
			state: &domain.MigrationState{
				ProcessedTables: []domain.TableProgress{{Table: "organizations", Confidence: 2.0, RecordCount: 100}},
			},
			wantType:       domain.RollbackFull,
			wantConfidence: 0.8,
		},
		{
			name: "high error rate scopes rollback to the table",
			state: &domain.MigrationState{
				ProcessedTables: []domain.TableProgress{
					{Table: "organizations", Confidence: 7.0, RecordCount: 100, ErrorCount: 2},
					{Table: "contacts", Confidence: 6.5, RecordCount: 100, ErrorCount: 40},
				},
			},
			wantType:       domain.RollbackTable,
			wantConfidence: 0.7,
		},
		{
			name: "middling confidence reverts to a trusted checkpoint",
			state: &domain.MigrationState{
				ProcessedTables: []domain.TableProgress{{Table: "organizations", Confidence: 5.5, RecordCount: 100}},
				Checkpoints:     []domain.MigrationCheckpoint{trusted},
			},
			wantType:       domain.RollbackCheckpoint,
			wantConfidence: 0.6,
		},
		{
			name: "low confidence without a checkpoint removes low-confidence records",
			state: &domain.MigrationState{
				ProcessedTables: []domain.TableProgress{{Table: "organizations", Confidence: 4.0, RecordCount: 100}},
			},
			wantType:       domain.RollbackPartial,
			wantConfidence: 0.5,
		},
		{
			name: "healthy run needs no rollback",
			state: &domain.MigrationState{
				ProcessedTables: []domain.TableProgress{{Table: "organizations", Confidence: 9.0, RecordCount: 100}},
			},
			wantType:       domain.RollbackPartial,
			wantConfidence: 0.1,
		},
		{
			name:           "run that processed nothing needs no rollback",
			state:          &domain.MigrationState{},
			wantType:       domain.RollbackPartial,
			wantConfidence: 0.1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			strategy := m.DetermineRollbackStrategy(tc.state)
			assert.Equal(t, tc.wantType, strategy.Type)
			assert.Equal(t, tc.wantConfidence, strategy.Confidence)

			// Same inputs, same decision.
			assert.Equal(t, strategy, m.DetermineRollbackStrategy(tc.state))
		})
	}
}

func TestDetermineRollbackStrategyTableListsOffenders(t *testing.T) {
	m, _, _ := newTestManager()
	state := &domain.MigrationState{
		ProcessedTables: []domain.TableProgress{
			{Table: "organizations", Confidence: 7.0, RecordCount: 100, ErrorCount: 0},
			{Table: "contacts", Confidence: 7.0, RecordCount: 10, ErrorCount: 4},
		},
	}

	strategy := m.DetermineRollbackStrategy(state)
	require.Equal(t, domain.RollbackTable, strategy.Type)
	assert.Equal(t, []string{"contacts"}, strategy.Tables)
}

func TestExecuteFullRollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager()

	// A record from an earlier run must survive the rollback.
	otherRun := uuid.New()
	survivor := seedOrganization(t, store, otherRun, "Cedar Valley Distribution", 9.0, time.Now().UTC())

	migrationID := uuid.New()
	state, err := m.InitializeMigration(ctx, migrationID)
	require.NoError(t, err)

	seedOrganization(t, store, migrationID, "Acme Restaurant Group", 8.5, time.Now().UTC())
	seedOrganization(t, store, migrationID, "Blue Harbor Seafood", 6.0, time.Now().UTC())

	result, err := m.ExecuteRollback(ctx, state, domain.RollbackStrategy{Type: domain.RollbackFull})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RecordsAffected)
	assert.Contains(t, result.TablesAffected, domain.TableOrganizations)
	assert.Equal(t, domain.MigrationRolledBack, state.Status)

	count, err := store.Count(ctx, domain.TableOrganizations)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	remaining, err := store.FindFirst(ctx, domain.TableOrganizations, repository.Filter{"migration_id": otherRun})
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, remaining.RecordID())
}

func TestExecuteFullRollbackFlagsSnapshotMismatch(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager()

	seedOrganization(t, store, uuid.New(), "Cedar Valley Distribution", 9.0, time.Now().UTC())

	migrationID := uuid.New()
	state, err := m.InitializeMigration(ctx, migrationID)
	require.NoError(t, err)

	// Something outside the run removes the pre-existing record.
	_, err = store.DeleteWhere(ctx, domain.TableOrganizations, repository.Filter{"name": "Cedar Valley Distribution"})
	require.NoError(t, err)

	result, err := m.ExecuteRollback(ctx, state, domain.RollbackStrategy{Type: domain.RollbackFull})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, err.Error(), "pre-migration snapshot")
}

func TestExecutePartialRollbackRemovesLowConfidenceOnly(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager()

	migrationID := uuid.New()
	state, err := m.InitializeMigration(ctx, migrationID)
	require.NoError(t, err)

	seedOrganization(t, store, migrationID, "Acme Restaurant Group", 9.0, time.Now().UTC())
	low := seedOrganization(t, store, migrationID, "Blue Harbor Seafood", 3.5, time.Now().UTC())

	result, err := m.ExecuteRollback(ctx, state, domain.RollbackStrategy{Type: domain.RollbackPartial})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RecordsAffected)

	_, err = store.FindFirst(ctx, domain.TableOrganizations, repository.Filter{"id": low.ID})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	count, err := store.Count(ctx, domain.TableOrganizations)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestExecuteCheckpointRollback(t *testing.T) {
	ctx := context.Background()
	m, store, states := newTestManager()

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time { return clock }

	migrationID := uuid.New()
	state, err := m.InitializeMigration(ctx, migrationID)
	require.NoError(t, err)

	early := seedOrganization(t, store, migrationID, "Acme Restaurant Group", 8.0, base.Add(1*time.Minute))

	clock = base.Add(2 * time.Minute)
	target, err := m.CreateCheckpoint(ctx, state, domain.PhaseTransformation, domain.TableOrganizations, 1, 8.0,
		map[string]string{MetaKind: KindAuto})
	require.NoError(t, err)

	seedOrganization(t, store, migrationID, "Blue Harbor Seafood", 8.0, base.Add(3*time.Minute))

	clock = base.Add(4 * time.Minute)
	_, err = m.CreateCheckpoint(ctx, state, domain.PhaseTransformation, domain.TableOrganizations, 2, 8.0,
		map[string]string{MetaKind: KindAuto})
	require.NoError(t, err)

	id := target.ID
	result, err := m.ExecuteRollback(ctx, state, domain.RollbackStrategy{
		Type:         domain.RollbackCheckpoint,
		CheckpointID: &id,
	})
	require.NoError(t, err)

	// Only the record loaded after the target checkpoint is removed.
	assert.Equal(t, 1, result.RecordsAffected)
	remaining, err := store.FindMany(ctx, domain.TableOrganizations, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, early.ID, remaining[0].RecordID())

	// The later checkpoint is dropped from the state and the repository.
	require.Len(t, state.Checkpoints, 1)
	assert.Equal(t, target.ID, state.Checkpoints[0].ID)

	persisted, err := states.ListCheckpoints(ctx, migrationID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, target.ID, persisted[0].ID)
}

func TestPruneCheckpointsKeepsTableCompletions(t *testing.T) {
	ctx := context.Background()
	m, _, states := newTestManager()

	migrationID := uuid.New()
	state, err := m.InitializeMigration(ctx, migrationID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = m.CreateCheckpoint(ctx, state, domain.PhaseTransformation, domain.TableOrganizations, (i+1)*1000, 8.0,
			map[string]string{MetaKind: KindAuto})
		require.NoError(t, err)
	}
	complete, err := m.CreateCheckpoint(ctx, state, domain.PhaseTransformation, domain.TableOrganizations, 5000, 8.0,
		map[string]string{MetaKind: KindTableComplete})
	require.NoError(t, err)

	pruned, err := m.PruneCheckpoints(ctx, migrationID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	remaining, err := states.ListCheckpoints(ctx, migrationID)
	require.NoError(t, err)
	require.Len(t, remaining, 3)

	var kinds []string
	for _, cp := range remaining {
		kinds = append(kinds, cp.Metadata[MetaKind])
	}
	assert.Contains(t, kinds, KindTableComplete)

	// The table-completion checkpoint itself is never pruned.
	found := false
	for _, cp := range remaining {
		if cp.ID == complete.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPruneCheckpointsUnderRetentionIsNoop(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	migrationID := uuid.New()
	state, err := m.InitializeMigration(ctx, migrationID)
	require.NoError(t, err)

	_, err = m.CreateCheckpoint(ctx, state, domain.PhaseTransformation, domain.TableOrganizations, 1000, 8.0,
		map[string]string{MetaKind: KindAuto})
	require.NoError(t, err)

	pruned, err := m.PruneCheckpoints(ctx, migrationID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
}
