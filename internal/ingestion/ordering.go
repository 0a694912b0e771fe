package ingestion

import (
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"

	"sandwich-watch/internal/domain"
)

// ErrInvalidOrdering is returned when logs are not in chain order.
var ErrInvalidOrdering = errors.New("logs are not in chain order")

// SortLogs orders logs by (block ASC, tx_index ASC, log_index ASC).
func SortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		return compareLogs(&logs[i], &logs[j]) < 0
	})
}

// ValidateLogOrdering checks that logs are strictly in chain order.
// Returns ErrInvalidOrdering if not.
func ValidateLogOrdering(logs []types.Log) error {
	for i := 1; i < len(logs); i++ {
		if compareLogs(&logs[i-1], &logs[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// GroupByTx splits chain-ordered logs into per-transaction groups.
func GroupByTx(logs []types.Log) [][]types.Log {
	var groups [][]types.Log
	start := 0
	for i := 1; i <= len(logs); i++ {
		if i == len(logs) || !sameTx(&logs[start], &logs[i]) {
			groups = append(groups, logs[start:i])
			start = i
		}
	}
	return groups
}

// SortObservations orders stored observations by (block, tx_index, log_index).
func SortObservations(events []*domain.SwapEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.LogIndex < b.LogIndex
	})
}

// GroupObservationsByTx splits chain-ordered observations into per-transaction groups.
func GroupObservationsByTx(events []*domain.SwapEvent) [][]*domain.SwapEvent {
	var groups [][]*domain.SwapEvent
	start := 0
	for i := 1; i <= len(events); i++ {
		if i == len(events) || events[i].TxRef != events[start].TxRef ||
			events[i].BlockNumber != events[start].BlockNumber {
			groups = append(groups, events[start:i])
			start = i
		}
	}
	return groups
}

func sameTx(a, b *types.Log) bool {
	return a.BlockNumber == b.BlockNumber && a.TxIndex == b.TxIndex && a.TxHash == b.TxHash
}

// compareLogs returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block ASC, tx_index ASC, log_index ASC)
func compareLogs(a, b *types.Log) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.TxIndex != b.TxIndex {
		if a.TxIndex < b.TxIndex {
			return -1
		}
		return 1
	}
	if a.Index != b.Index {
		if a.Index < b.Index {
			return -1
		}
		return 1
	}
	return 0
}
