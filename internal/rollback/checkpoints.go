package rollback

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// DefaultCheckpointRetention caps how many automatic checkpoints a run keeps.
// Table-completion checkpoints are never pruned.
const DefaultCheckpointRetention = 20

// ListCheckpoints returns a run's persisted checkpoints, oldest first.
func (m *Manager) ListCheckpoints(ctx context.Context, migrationID uuid.UUID) ([]domain.MigrationCheckpoint, error) {
	return m.states.ListCheckpoints(ctx, migrationID)
}

// PruneCheckpoints deletes automatic checkpoints beyond the retention count,
// oldest first, and reports how many were removed.
func (m *Manager) PruneCheckpoints(ctx context.Context, migrationID uuid.UUID, retain int) (int, error) {
	if retain <= 0 {
		retain = DefaultCheckpointRetention
	}

	checkpoints, err := m.states.ListCheckpoints(ctx, migrationID)
	if err != nil {
		return 0, err
	}

	var auto []domain.MigrationCheckpoint
	for _, cp := range checkpoints {
		if cp.Metadata[MetaKind] == KindAuto {
			auto = append(auto, cp)
		}
	}
	if len(auto) <= retain {
		return 0, nil
	}

	pruned := 0
	for _, cp := range auto[:len(auto)-retain] {
		if err := m.states.DeleteCheckpoint(ctx, cp.ID); err != nil {
			return pruned, fmt.Errorf("failed to prune checkpoint %s: %w", cp.ID, err)
		}
		pruned++
	}

	m.logger.Info("pruned checkpoints",
		zap.String("migration_id", migrationID.String()),
		zap.Int("pruned", pruned),
		zap.Int("retained", retain))
	return pruned, nil
}
