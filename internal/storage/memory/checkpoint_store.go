package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[common.Address]storage.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[common.Address]storage.Checkpoint),
	}
}

// GetLastProcessed returns the checkpoint for router.
func (s *CheckpointStore) GetLastProcessed(_ context.Context, router common.Address) (*storage.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[router]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

// SetLastProcessed saves the checkpoint for router.
func (s *CheckpointStore) SetLastProcessed(_ context.Context, router common.Address, cp *storage.Checkpoint) error {
	if cp == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[router] = *cp
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
