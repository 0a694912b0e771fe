package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapEvent // keyed by tx_ref|log_index
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		data: make(map[string]*domain.SwapEvent),
	}
}

func observationKey(o *domain.SwapEvent) string {
	return fmt.Sprintf("%s|%d", o.TxRef, o.LogIndex)
}

// Insert adds a new observation. Returns ErrDuplicateKey if exists.
func (s *ObservationStore) Insert(_ context.Context, o *domain.SwapEvent) error {
	if o == nil || o.TxRef == "" {
		return storage.ErrInvalidInput
	}

	key := observationKey(o)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = cloneObservation(o)
	return nil
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *ObservationStore) InsertBulk(_ context.Context, observations []*domain.SwapEvent) error {
	if len(observations) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(observations))
	for _, o := range observations {
		if o == nil || o.TxRef == "" {
			return storage.ErrInvalidInput
		}
		key := observationKey(o)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, o := range observations {
		s.data[observationKey(o)] = cloneObservation(o)
	}
	return nil
}

// GetByBlockRange retrieves observations emitted by router in [from, to] (inclusive),
// in chain order.
func (s *ObservationStore) GetByBlockRange(_ context.Context, router common.Address, from, to uint64) ([]*domain.SwapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapEvent
	for _, o := range s.data {
		if o.Router == router && o.BlockNumber >= from && o.BlockNumber <= to {
			result = append(result, cloneObservation(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.LogIndex < b.LogIndex
	})
	return result, nil
}

// cloneObservation copies o including its amounts.
func cloneObservation(o *domain.SwapEvent) *domain.SwapEvent {
	c := *o
	if o.AmountIn != nil {
		c.AmountIn = o.AmountIn.Clone()
	}
	if o.AmountOut != nil {
		c.AmountOut = o.AmountOut.Clone()
	}
	return &c
}

// Verify interface compliance at compile time.
var _ storage.ObservationStore = (*ObservationStore)(nil)
