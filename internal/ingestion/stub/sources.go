package stub

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
)

// StubLogFetcher returns fixed in-memory logs for testing.
// Logs can be intentionally unordered to test sorting.
// Implements ingestion.LogFetcher interface.
type StubLogFetcher struct {
	mu    sync.Mutex
	logs  []types.Log
	calls [][2]uint64
}

// NewStubLogFetcher creates a new stub fetcher with the given logs.
func NewStubLogFetcher(logs []types.Log) *StubLogFetcher {
	return &StubLogFetcher{logs: logs}
}

// Fetch returns copies of logs within [from, to] in stored order.
func (s *StubLogFetcher) Fetch(_ context.Context, from, to uint64) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, [2]uint64{from, to})

	var result []types.Log
	for _, l := range s.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			result = append(result, l)
		}
	}
	return result, nil
}

// Calls returns the requested ranges in call order.
func (s *StubLogFetcher) Calls() [][2]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]uint64(nil), s.calls...)
}

// StubLogSource is a controllable live log source.
// Implements ingestion.LogSource interface.
type StubLogSource struct {
	ch chan types.Log
}

// NewStubLogSource creates a stub source buffering up to size logs.
func NewStubLogSource(size int) *StubLogSource {
	return &StubLogSource{ch: make(chan types.Log, size)}
}

// Subscribe returns the source channel.
func (s *StubLogSource) Subscribe(_ context.Context) (<-chan types.Log, error) {
	return s.ch, nil
}

// Send queues a log for delivery.
func (s *StubLogSource) Send(l types.Log) {
	s.ch <- l
}

// Close closes the source channel.
func (s *StubLogSource) Close() {
	close(s.ch)
}
