package rollback

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/repository"
)

// ExecuteRollback dispatches on the strategy type, removes the offending
// records and marks the run rolled back. Per-table failures are aggregated
// rather than aborting the remaining tables; the result reports every error.
func (m *Manager) ExecuteRollback(ctx context.Context, state *domain.MigrationState, strategy domain.RollbackStrategy) (domain.RollbackResult, error) {
	start := m.now()
	result := domain.RollbackResult{Strategy: strategy.Type}

	m.logger.Info("executing rollback",
		zap.String("migration_id", state.ID.String()),
		zap.String("strategy", string(strategy.Type)),
		zap.String("reason", strategy.Reason))

	var merr *multierror.Error
	switch strategy.Type {
	case domain.RollbackFull:
		merr = m.deleteByFilter(ctx, reverseLoadOrder(), repository.Filter{"migration_id": state.ID}, &result)
		m.verifySnapshot(ctx, state, &result, &merr)
	case domain.RollbackTable:
		tables := orderedSubset(strategy.Tables)
		merr = m.deleteByFilter(ctx, tables, repository.Filter{"migration_id": state.ID}, &result)
	case domain.RollbackCheckpoint:
		merr = m.rollbackToCheckpoint(ctx, state, strategy, &result)
	case domain.RollbackPartial:
		merr = m.deleteByFilter(ctx, reverseLoadOrder(), repository.Filter{
			"migration_id":  state.ID,
			"confidence_lt": lowConfidenceCutoff,
		}, &result)
	default:
		return result, fmt.Errorf("unknown rollback strategy %q", strategy.Type)
	}

	if state.Status == domain.MigrationInProgress {
		if err := state.Transition(domain.MigrationRolledBack); err != nil {
			merr = multierror.Append(merr, err)
		}
	} else {
		m.logger.Warn("migration already terminal, leaving status unchanged",
			zap.String("migration_id", state.ID.String()),
			zap.String("status", string(state.Status)))
	}
	if err := m.states.Save(ctx, state); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("failed to persist rolled-back state: %w", err))
	}

	result.Duration = m.now().Sub(start)
	if err := merr.ErrorOrNil(); err != nil {
		for _, e := range merr.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
		return result, err
	}

	result.Success = true
	m.logger.Info("rollback complete",
		zap.String("migration_id", state.ID.String()),
		zap.Int("records_affected", result.RecordsAffected),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (m *Manager) deleteByFilter(ctx context.Context, tables []string, filter repository.Filter, result *domain.RollbackResult) *multierror.Error {
	var merr *multierror.Error
	for _, table := range tables {
		deleted, err := m.store.DeleteWhere(ctx, table, filter)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("rollback of %s: %w", table, err))
			continue
		}
		if deleted > 0 {
			result.RecordsAffected += int(deleted)
			result.TablesAffected = append(result.TablesAffected, table)
		}
	}
	return merr
}

// rollbackToCheckpoint undoes everything recorded after the target checkpoint
// by deleting this run's records created after the checkpoint's timestamp.
func (m *Manager) rollbackToCheckpoint(ctx context.Context, state *domain.MigrationState, strategy domain.RollbackStrategy, result *domain.RollbackResult) *multierror.Error {
	var merr *multierror.Error
	if strategy.CheckpointID == nil {
		return multierror.Append(merr, fmt.Errorf("checkpoint rollback requires a checkpoint id"))
	}

	var target *domain.MigrationCheckpoint
	for i := range state.Checkpoints {
		if state.Checkpoints[i].ID == *strategy.CheckpointID {
			target = &state.Checkpoints[i]
			break
		}
	}
	if target == nil {
		return multierror.Append(merr, fmt.Errorf("checkpoint %s not found on migration %s", strategy.CheckpointID, state.ID))
	}

	merr = m.deleteByFilter(ctx, reverseLoadOrder(), repository.Filter{
		"migration_id":  state.ID,
		"created_after": target.Timestamp,
	}, result)

	// Drop the now-invalid checkpoints so later evaluation starts from the
	// surviving one.
	kept := state.Checkpoints[:0]
	for _, cp := range state.Checkpoints {
		if cp.Timestamp.After(target.Timestamp) && cp.ID != target.ID {
			if err := m.states.DeleteCheckpoint(ctx, cp.ID); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("failed to drop checkpoint %s: %w", cp.ID, err))
			}
			continue
		}
		kept = append(kept, cp)
	}
	state.Checkpoints = kept

	return merr
}

// verifySnapshot compares post-rollback counts with the pre-migration
// snapshot. A mismatch means rows outside this run were touched, or the
// snapshot is missing after a process restart.
func (m *Manager) verifySnapshot(ctx context.Context, state *domain.MigrationState, result *domain.RollbackResult, merr **multierror.Error) {
	snapshot := m.snapshotFor(state.ID)
	if snapshot == nil {
		m.logger.Warn("no pre-migration snapshot available, skipping count verification",
			zap.String("migration_id", state.ID.String()))
		return
	}

	for _, table := range domain.TableLoadOrder {
		count, err := m.store.Count(ctx, table)
		if err != nil {
			*merr = multierror.Append(*merr, fmt.Errorf("failed to verify %s after rollback: %w", table, err))
			continue
		}
		if expected := snapshot[table]; count != expected {
			*merr = multierror.Append(*merr,
				fmt.Errorf("%s has %d rows after rollback, expected %d from pre-migration snapshot", table, count, expected))
		}
	}
}

// orderedSubset returns the given tables in reverse load order, dropping
// unknown names.
func orderedSubset(tables []string) []string {
	requested := make(map[string]bool, len(tables))
	for _, t := range tables {
		requested[t] = true
	}
	var out []string
	for _, table := range reverseLoadOrder() {
		if requested[table] {
			out = append(out, table)
		}
	}
	return out
}
