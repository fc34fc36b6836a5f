package rollback

import (
	"fmt"
	"strings"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// DetermineRollbackStrategy is a deterministic decision ladder over the run's
// recorded errors, per-table progress and average mapping confidence. Rungs
// are evaluated top to bottom; the first match wins.
func (m *Manager) DetermineRollbackStrategy(state *domain.MigrationState) domain.RollbackStrategy {
	avgConfidence := averageConfidence(state)

	if hasCriticalError(state) {
		return domain.RollbackStrategy{
			Type:       domain.RollbackFull,
			Reason:     "critical error recorded during migration",
			Confidence: 0.9,
		}
	}

	if avgConfidence < domain.AcceptConfidenceFloor {
		return domain.RollbackStrategy{
			Type:       domain.RollbackFull,
			Reason:     fmt.Sprintf("average mapping confidence %.1f indicates unreliable mapping", avgConfidence),
			Confidence: 0.8,
		}
	}

	if bad := tablesOverErrorRate(state); len(bad) > 0 {
		return domain.RollbackStrategy{
			Type:       domain.RollbackTable,
			Tables:     bad,
			Reason:     fmt.Sprintf("error rate above %.0f%% in: %s", tableErrorRateLimit*100, strings.Join(bad, ", ")),
			Confidence: 0.7,
		}
	}

	if avgConfidence < 6.0 {
		if cp, ok := latestTrustedCheckpoint(state); ok {
			id := cp.ID
			return domain.RollbackStrategy{
				Type:         domain.RollbackCheckpoint,
				CheckpointID: &id,
				Reason:       fmt.Sprintf("reverting to checkpoint with confidence %.1f", cp.Confidence),
				Confidence:   0.6,
			}
		}
	}

	if avgConfidence < lowConfidenceCutoff {
		return domain.RollbackStrategy{
			Type:       domain.RollbackPartial,
			Reason:     "removing low-confidence records only",
			Confidence: 0.5,
		}
	}

	return domain.RollbackStrategy{
		Type:       domain.RollbackPartial,
		Reason:     "no rollback required",
		Confidence: 0.1,
	}
}

func hasCriticalError(state *domain.MigrationState) bool {
	for _, e := range state.Errors {
		if e.Severity == domain.SeverityCriticalRun {
			return true
		}
	}
	return false
}

// averageConfidence is the mean mapping confidence across processed tables. A
// run that processed nothing yet has nothing to distrust and scores full
// confidence.
func averageConfidence(state *domain.MigrationState) float64 {
	if len(state.ProcessedTables) == 0 {
		return domain.HighConfidenceFloor
	}
	var sum float64
	for _, tp := range state.ProcessedTables {
		sum += tp.Confidence
	}
	return sum / float64(len(state.ProcessedTables))
}

func tablesOverErrorRate(state *domain.MigrationState) []string {
	var tables []string
	for _, tp := range state.ProcessedTables {
		if tp.RecordCount == 0 {
			continue
		}
		if rate := float64(tp.ErrorCount) / float64(tp.RecordCount); rate > tableErrorRateLimit {
			tables = append(tables, tp.Table)
		}
	}
	return tables
}

// latestTrustedCheckpoint returns the most recent checkpoint whose confidence
// clears the floor.
func latestTrustedCheckpoint(state *domain.MigrationState) (domain.MigrationCheckpoint, bool) {
	for i := len(state.Checkpoints) - 1; i >= 0; i-- {
		if state.Checkpoints[i].Confidence >= checkpointConfidenceFloor {
			return state.Checkpoints[i], true
		}
	}
	return domain.MigrationCheckpoint{}, false
}
