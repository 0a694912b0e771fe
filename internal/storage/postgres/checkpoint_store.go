package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// One row per router in ingestion_checkpoints.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetLastProcessed returns the checkpoint for router.
func (s *CheckpointStore) GetLastProcessed(ctx context.Context, router common.Address) (*storage.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT block, tx_hash
		FROM ingestion_checkpoints
		WHERE router = $1
	`, router.Hex())

	var cp storage.Checkpoint
	if err := row.Scan(&cp.Block, &cp.TxHash); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// SetLastProcessed saves the checkpoint for router.
// Uses upsert to handle initial insert and subsequent updates.
func (s *CheckpointStore) SetLastProcessed(ctx context.Context, router common.Address, cp *storage.Checkpoint) error {
	if cp == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_checkpoints (router, block, tx_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (router) DO UPDATE
		SET block = EXCLUDED.block,
		    tx_hash = EXCLUDED.tx_hash,
		    updated_at = NOW()
	`, router.Hex(), cp.Block, cp.TxHash)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
