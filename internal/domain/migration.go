package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MigrationStatus tracks the lifecycle of a run. Transitions are monotonic:
// in_progress is the only non-terminal status.
type MigrationStatus string

const (
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// Phase names the orchestrator's sequential stages.
type Phase string

const (
	PhaseMapping        Phase = "mapping"
	PhaseValidation     Phase = "validation"
	PhaseTransformation Phase = "transformation"
	PhaseVerification   Phase = "verification"
	PhaseComplete       Phase = "complete"
	PhaseAborted        Phase = "aborted"
)

// TableStatus tracks per-table progress inside a run.
type TableStatus string

const (
	TablePending    TableStatus = "pending"
	TableProcessing TableStatus = "processing"
	TableCompleted  TableStatus = "completed"
	TableFailed     TableStatus = "failed"
)

// ErrorSeverity grades run-level errors recorded on the migration state.
type ErrorSeverity string

const (
	SeverityLow         ErrorSeverity = "low"
	SeverityMedium      ErrorSeverity = "medium"
	SeverityHigh        ErrorSeverity = "high"
	SeverityCriticalRun ErrorSeverity = "critical"
)

// MigrationCheckpoint is an append-only marker of progress, persisted so a
// crashed process can resume rollback evaluation.
type MigrationCheckpoint struct {
	ID               uuid.UUID         `json:"id"`
	MigrationID      uuid.UUID         `json:"migration_id"`
	Timestamp        time.Time         `json:"timestamp"`
	Phase            Phase             `json:"phase"`
	Table            string            `json:"table"`
	RecordsProcessed int               `json:"records_processed"`
	Confidence       float64           `json:"confidence"`
	Metadata         map[string]string `json:"metadata"`
}

// TableProgress is the per-table entry on a migration state.
type TableProgress struct {
	Table       string      `json:"table"`
	RecordCount int         `json:"record_count"`
	ErrorCount  int         `json:"error_count"`
	Confidence  float64     `json:"confidence"`
	Status      TableStatus `json:"status"`
}

// MigrationError is a run-level error entry on the migration state.
type MigrationError struct {
	Timestamp time.Time     `json:"timestamp"`
	Phase     Phase         `json:"phase"`
	Table     string        `json:"table,omitempty"`
	Message   string        `json:"error"`
	Severity  ErrorSeverity `json:"severity"`
}

// MigrationState is the aggregate root for one run.
type MigrationState struct {
	ID              uuid.UUID             `json:"id"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	Status          MigrationStatus       `json:"status"`
	Checkpoints     []MigrationCheckpoint `json:"checkpoints"`
	ProcessedTables []TableProgress       `json:"processed_tables"`
	Errors          []MigrationError      `json:"errors"`
}

// NewMigrationState starts a run in progress.
func NewMigrationState(id uuid.UUID) *MigrationState {
	return &MigrationState{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Status:    MigrationInProgress,
	}
}

// Transition moves the state to a terminal status. It rejects any change once
// the run has left in_progress.
func (s *MigrationState) Transition(to MigrationStatus) error {
	if s.Status != MigrationInProgress {
		return fmt.Errorf("migration %s is already %s, cannot transition to %s", s.ID, s.Status, to)
	}
	if to == MigrationInProgress {
		return fmt.Errorf("migration %s cannot transition back to %s", s.ID, to)
	}
	s.Status = to
	now := time.Now().UTC()
	s.CompletedAt = &now
	return nil
}

// TableFor returns the progress entry for a table, if tracked.
func (s *MigrationState) TableFor(table string) (TableProgress, bool) {
	for _, tp := range s.ProcessedTables {
		if tp.Table == table {
			return tp, true
		}
	}
	return TableProgress{}, false
}

// UpsertTable inserts or replaces the progress entry for a table.
func (s *MigrationState) UpsertTable(progress TableProgress) {
	for i, tp := range s.ProcessedTables {
		if tp.Table == progress.Table {
			s.ProcessedTables[i] = progress
			return
		}
	}
	s.ProcessedTables = append(s.ProcessedTables, progress)
}

// LastCheckpoint returns the most recent checkpoint, if any exist.
func (s *MigrationState) LastCheckpoint() (MigrationCheckpoint, bool) {
	if len(s.Checkpoints) == 0 {
		return MigrationCheckpoint{}, false
	}
	return s.Checkpoints[len(s.Checkpoints)-1], true
}

// RollbackType selects how much of a run gets undone.
type RollbackType string

const (
	RollbackFull       RollbackType = "full"
	RollbackPartial    RollbackType = "partial"
	RollbackTable      RollbackType = "table"
	RollbackCheckpoint RollbackType = "checkpoint"
)

// RollbackStrategy is a computed decision artifact, consumed immediately and
// never persisted as mutable state.
type RollbackStrategy struct {
	Type         RollbackType `json:"type"`
	CheckpointID *uuid.UUID   `json:"checkpoint_id,omitempty"`
	Tables       []string     `json:"tables,omitempty"`
	Reason       string       `json:"reason"`
	Confidence   float64      `json:"confidence"`
}

// RollbackResult reports the outcome of an executed rollback.
type RollbackResult struct {
	Success         bool          `json:"success"`
	Strategy        RollbackType  `json:"strategy"`
	RecordsAffected int           `json:"records_affected"`
	TablesAffected  []string      `json:"tables_affected"`
	Errors          []string      `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// RowError is a persisted row-level migration error, kept for observability
// alongside the run state.
type RowError struct {
	ID          int64     `json:"id"`
	MigrationID uuid.UUID `json:"migration_id"`
	Table       string    `json:"table"`
	RowNumber   *int      `json:"row_number,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
