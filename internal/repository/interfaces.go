// Package repository defines the persistence ports for the migration engine
// and their Postgres and in-memory implementations.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Filter restricts queries by column equality. Three keys receive special
// treatment: "confidence_lt" (numeric less-than on mapping confidence),
// "created_after" (time.Time strictly-after on created_at) and "id_in"
// ([]uuid.UUID membership).
type Filter map[string]any

// RecordStore is the CRUD-shaped port to the target store. The engine assumes
// nothing about the storage technology beyond these operations.
type RecordStore interface {
	// CreateMany persists a batch and returns the number actually inserted.
	// With skipDuplicates set, rows violating uniqueness are skipped instead
	// of failing the whole batch.
	CreateMany(ctx context.Context, table string, records []domain.Record, skipDuplicates bool) (int, error)
	FindMany(ctx context.Context, table string, filter Filter) ([]domain.Record, error)
	FindFirst(ctx context.Context, table string, filter Filter) (domain.Record, error)
	Count(ctx context.Context, table string) (int64, error)
	Update(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error
	DeleteWhere(ctx context.Context, table string, filter Filter) (int64, error)
}

// MigrationStateRepository durably persists run state, checkpoints and
// row-level errors so a crashed process can still be evaluated for rollback.
type MigrationStateRepository interface {
	Save(ctx context.Context, state *domain.MigrationState) error
	Get(ctx context.Context, id uuid.UUID) (*domain.MigrationState, error)
	AppendCheckpoint(ctx context.Context, checkpoint domain.MigrationCheckpoint) error
	ListCheckpoints(ctx context.Context, migrationID uuid.UUID) ([]domain.MigrationCheckpoint, error)
	DeleteCheckpoint(ctx context.Context, id uuid.UUID) error
	RecordRowError(ctx context.Context, entry domain.RowError) error
	ListRowErrors(ctx context.Context, migrationID uuid.UUID, limit, offset int) ([]domain.RowError, error)
}
