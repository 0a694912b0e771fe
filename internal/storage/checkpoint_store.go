package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint is the last block fully handed to the detector for a router.
type Checkpoint struct {
	Block  uint64
	TxHash string // last transaction processed in Block
}

// CheckpointStore persists ingestion progress so backfills can resume after a
// restart without feeding blocks to the detector twice.
type CheckpointStore interface {
	// GetLastProcessed returns the checkpoint for router.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastProcessed(ctx context.Context, router common.Address) (*Checkpoint, error)

	// SetLastProcessed saves the checkpoint for router.
	SetLastProcessed(ctx context.Context, router common.Address, cp *Checkpoint) error
}
