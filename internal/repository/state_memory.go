package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// MemoryStateRepository is an in-memory MigrationStateRepository for dry runs
// and tests. Safe for concurrent use.
type MemoryStateRepository struct {
	mu          sync.RWMutex
	states      map[uuid.UUID][]byte
	checkpoints map[uuid.UUID][]domain.MigrationCheckpoint
	rowErrors   map[uuid.UUID][]domain.RowError
	nextErrorID int64
}

// NewMemoryStateRepository creates an empty repository.
func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		states:      map[uuid.UUID][]byte{},
		checkpoints: map[uuid.UUID][]domain.MigrationCheckpoint{},
		rowErrors:   map[uuid.UUID][]domain.RowError{},
	}
}

func (r *MemoryStateRepository) Save(_ context.Context, state *domain.MigrationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal migration state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.ID] = payload
	return nil
}

func (r *MemoryStateRepository) Get(_ context.Context, id uuid.UUID) (*domain.MigrationState, error) {
	r.mu.RLock()
	payload, ok := r.states[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var state domain.MigrationState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal migration state %s: %w", id, err)
	}
	return &state, nil
}

func (r *MemoryStateRepository) AppendCheckpoint(_ context.Context, checkpoint domain.MigrationCheckpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[checkpoint.MigrationID] = append(r.checkpoints[checkpoint.MigrationID], checkpoint)
	return nil
}

func (r *MemoryStateRepository) ListCheckpoints(_ context.Context, migrationID uuid.UUID) ([]domain.MigrationCheckpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := r.checkpoints[migrationID]
	out := make([]domain.MigrationCheckpoint, len(history))
	copy(out, history)
	return out, nil
}

func (r *MemoryStateRepository) DeleteCheckpoint(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for migrationID, history := range r.checkpoints {
		for i, cp := range history {
			if cp.ID == id {
				r.checkpoints[migrationID] = append(history[:i], history[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

func (r *MemoryStateRepository) RecordRowError(_ context.Context, entry domain.RowError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextErrorID++
	entry.ID = r.nextErrorID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.rowErrors[entry.MigrationID] = append(r.rowErrors[entry.MigrationID], entry)
	return nil
}

func (r *MemoryStateRepository) ListRowErrors(_ context.Context, migrationID uuid.UUID, limit, offset int) ([]domain.RowError, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.rowErrors[migrationID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []domain.RowError{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]domain.RowError, len(entries))
	copy(out, entries)
	return out, nil
}
