// Package rollback tracks migration run state, records checkpoints, and
// decides and executes rollback when a run goes bad.
package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/repository"
)

// Checkpoint metadata keys.
const (
	MetaKind          = "kind"
	KindAuto          = "auto"
	KindTableComplete = "table_complete"
	KindPhase         = "phase"
)

const (
	// lowConfidenceCutoff marks the records removed by a partial rollback.
	lowConfidenceCutoff = domain.MediumConfidenceFloor
	// checkpointConfidenceFloor is the minimum checkpoint confidence worth
	// rolling back to.
	checkpointConfidenceFloor = 7.0
	// tableErrorRateLimit triggers a table-scoped rollback.
	tableErrorRateLimit = 0.3
)

// Manager owns the migration state lifecycle. One manager serves many runs;
// per-run data lives on the MigrationState and in the state repository.
type Manager struct {
	store  repository.RecordStore
	states repository.MigrationStateRepository
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	snapshots map[uuid.UUID]map[string]int64
}

// NewManager wires a rollback manager.
func NewManager(store repository.RecordStore, states repository.MigrationStateRepository, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		states:    states,
		logger:    logger,
		now:       time.Now,
		snapshots: map[uuid.UUID]map[string]int64{},
	}
}

// InitializeMigration starts a run: it captures the pre-migration snapshot of
// target table counts before any writes happen, then persists the fresh state.
func (m *Manager) InitializeMigration(ctx context.Context, id uuid.UUID) (*domain.MigrationState, error) {
	snapshot := make(map[string]int64, len(domain.TableLoadOrder))
	for _, table := range domain.TableLoadOrder {
		count, err := m.store.Count(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s before migration: %w", table, err)
		}
		snapshot[table] = count
	}

	m.mu.Lock()
	m.snapshots[id] = snapshot
	m.mu.Unlock()

	state := domain.NewMigrationState(id)
	if err := m.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist migration state: %w", err)
	}

	m.logger.Info("migration initialized",
		zap.String("migration_id", id.String()),
		zap.Any("pre_migration_counts", snapshot))
	return state, nil
}

// CreateCheckpoint appends a progress marker and persists both the checkpoint
// row and the updated state.
func (m *Manager) CreateCheckpoint(ctx context.Context, state *domain.MigrationState, phase domain.Phase, table string, recordsProcessed int, confidence float64, metadata map[string]string) (domain.MigrationCheckpoint, error) {
	checkpoint := domain.MigrationCheckpoint{
		ID:               uuid.New(),
		MigrationID:      state.ID,
		Timestamp:        m.now().UTC(),
		Phase:            phase,
		Table:            table,
		RecordsProcessed: recordsProcessed,
		Confidence:       confidence,
		Metadata:         metadata,
	}

	state.Checkpoints = append(state.Checkpoints, checkpoint)
	if err := m.states.AppendCheckpoint(ctx, checkpoint); err != nil {
		return domain.MigrationCheckpoint{}, err
	}
	if err := m.states.Save(ctx, state); err != nil {
		return domain.MigrationCheckpoint{}, err
	}

	m.logger.Debug("checkpoint created",
		zap.String("migration_id", state.ID.String()),
		zap.String("phase", string(phase)),
		zap.String("table", table),
		zap.Int("records_processed", recordsProcessed),
		zap.Float64("confidence", confidence))
	return checkpoint, nil
}

// UpdateTableStatus upserts a per-table progress entry and persists the state.
func (m *Manager) UpdateTableStatus(ctx context.Context, state *domain.MigrationState, progress domain.TableProgress) error {
	state.UpsertTable(progress)
	return m.states.Save(ctx, state)
}

// RecordError appends a run-level error to the state and persists it.
func (m *Manager) RecordError(ctx context.Context, state *domain.MigrationState, phase domain.Phase, table string, message string, severity domain.ErrorSeverity) error {
	state.Errors = append(state.Errors, domain.MigrationError{
		Timestamp: m.now().UTC(),
		Phase:     phase,
		Table:     table,
		Message:   message,
		Severity:  severity,
	})
	return m.states.Save(ctx, state)
}

// RecordRowError persists one row-level failure for the run's error log.
func (m *Manager) RecordRowError(ctx context.Context, migrationID uuid.UUID, table string, row *int, message string) error {
	return m.states.RecordRowError(ctx, domain.RowError{
		MigrationID: migrationID,
		Table:       table,
		RowNumber:   row,
		Message:     message,
		CreatedAt:   m.now().UTC(),
	})
}

// snapshotFor returns the pre-migration counts captured at initialization.
func (m *Manager) snapshotFor(id uuid.UUID) map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[id]
}

// reverseLoadOrder returns the target tables child-first, so deletes never
// break referential integrity.
func reverseLoadOrder() []string {
	out := make([]string, len(domain.TableLoadOrder))
	for i, table := range domain.TableLoadOrder {
		out[len(out)-1-i] = table
	}
	return out
}
