package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

// FindingStore is an in-memory implementation of storage.FindingStore.
type FindingStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Finding // keyed by finding_id
}

// NewFindingStore creates a new in-memory finding store.
func NewFindingStore() *FindingStore {
	return &FindingStore{
		data: make(map[string]*domain.Finding),
	}
}

// Insert adds a new finding. Returns ErrDuplicateKey if finding_id exists.
func (s *FindingStore) Insert(_ context.Context, f *domain.Finding) error {
	if f == nil || f.FindingID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[f.FindingID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	findingCopy := *f
	s.data[f.FindingID] = &findingCopy
	return nil
}

// GetByID retrieves a finding by its ID. Returns ErrNotFound if not exists.
func (s *FindingStore) GetByID(_ context.Context, findingID string) (*domain.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.data[findingID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	findingCopy := *f
	return &findingCopy, nil
}

// GetByFrontrunner retrieves all findings attributed to an account, ordered by block ASC.
func (s *FindingStore) GetByFrontrunner(_ context.Context, account common.Address) ([]*domain.Finding, error) {
	return s.filter(func(f *domain.Finding) bool {
		return f.FrontrunnerAccount == account
	}), nil
}

// GetByBlockRange retrieves findings in [from, to] (inclusive), ordered by block ASC.
func (s *FindingStore) GetByBlockRange(_ context.Context, from, to uint64) ([]*domain.Finding, error) {
	return s.filter(func(f *domain.Finding) bool {
		return f.BlockNumber >= from && f.BlockNumber <= to
	}), nil
}

// GetAll returns every finding ordered by block ASC.
func (s *FindingStore) GetAll(_ context.Context) ([]*domain.Finding, error) {
	return s.filter(func(*domain.Finding) bool { return true }), nil
}

func (s *FindingStore) filter(keep func(*domain.Finding) bool) []*domain.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Finding
	for _, f := range s.data {
		if keep(f) {
			findingCopy := *f
			result = append(result, &findingCopy)
		}
	}

	// Sort by block_number ASC, finding_id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		return result[i].FindingID < result[j].FindingID
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.FindingStore = (*FindingStore)(nil)
