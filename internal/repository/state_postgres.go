package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crmigrate/crmigrate/internal/domain"
)

type postgresStateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresStateRepository wires a MigrationStateRepository backed by
// pgxpool. The aggregate state is stored as JSONB; checkpoints and row errors
// additionally land in their own append-only tables for querying.
func NewPostgresStateRepository(pool *pgxpool.Pool) MigrationStateRepository {
	return &postgresStateRepository{pool: pool}
}

func (r *postgresStateRepository) Save(ctx context.Context, state *domain.MigrationState) error {
	if r.pool == nil {
		return fmt.Errorf("state repository not initialized")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal migration state: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO migration_states (id, started_at, completed_at, status, state)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET completed_at = EXCLUDED.completed_at,
		     status = EXCLUDED.status,
		     state = EXCLUDED.state,
		     updated_at = NOW()`,
		state.ID,
		state.StartedAt,
		state.CompletedAt,
		state.Status,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save migration state: %w", err)
	}
	return nil
}

func (r *postgresStateRepository) Get(ctx context.Context, id uuid.UUID) (*domain.MigrationState, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("state repository not initialized")
	}

	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT state FROM migration_states WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load migration state %s: %w", id, err)
	}

	var state domain.MigrationState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal migration state %s: %w", id, err)
	}
	return &state, nil
}

func (r *postgresStateRepository) AppendCheckpoint(ctx context.Context, checkpoint domain.MigrationCheckpoint) error {
	if r.pool == nil {
		return fmt.Errorf("state repository not initialized")
	}

	metadata, err := json.Marshal(checkpoint.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint metadata: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO migration_checkpoints
		 (id, migration_id, created_at, phase, table_name, records_processed, confidence, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		checkpoint.ID,
		checkpoint.MigrationID,
		checkpoint.Timestamp,
		checkpoint.Phase,
		checkpoint.Table,
		checkpoint.RecordsProcessed,
		checkpoint.Confidence,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return nil
}

func (r *postgresStateRepository) ListCheckpoints(ctx context.Context, migrationID uuid.UUID) ([]domain.MigrationCheckpoint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("state repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, migration_id, created_at, phase, table_name, records_processed, confidence, metadata
		 FROM migration_checkpoints
		 WHERE migration_id = $1
		 ORDER BY created_at`,
		migrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []domain.MigrationCheckpoint{}
	for rows.Next() {
		var (
			cp       domain.MigrationCheckpoint
			metadata []byte
		)
		if scanErr := rows.Scan(
			&cp.ID, &cp.MigrationID, &cp.Timestamp, &cp.Phase, &cp.Table,
			&cp.RecordsProcessed, &cp.Confidence, &metadata,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", scanErr)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &cp.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal checkpoint metadata: %w", err)
			}
		}
		checkpoints = append(checkpoints, cp)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", rowsErr)
	}
	return checkpoints, nil
}

func (r *postgresStateRepository) DeleteCheckpoint(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("state repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM migration_checkpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresStateRepository) RecordRowError(ctx context.Context, entry domain.RowError) error {
	if r.pool == nil {
		return fmt.Errorf("state repository not initialized")
	}

	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO migration_row_errors (migration_id, table_name, row_number, error_message)
		 VALUES ($1, $2, $3, $4)`,
		entry.MigrationID,
		entry.Table,
		rowNumber,
		entry.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to record row error: %w", err)
	}
	return nil
}

func (r *postgresStateRepository) ListRowErrors(ctx context.Context, migrationID uuid.UUID, limit, offset int) ([]domain.RowError, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("state repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, migration_id, table_name, row_number, error_message, created_at
		 FROM migration_row_errors
		 WHERE migration_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		migrationID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list row errors: %w", err)
	}
	defer rows.Close()

	entries := []domain.RowError{}
	for rows.Next() {
		var (
			entry     domain.RowError
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID, &entry.MigrationID, &entry.Table, &rowNumber, &entry.Message, &createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan row error: %w", scanErr)
		}
		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate row errors: %w", rowsErr)
	}
	return entries, nil
}
