package ingestion

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"

	"sandwich-watch/internal/domain"
)

func TestSortLogs(t *testing.T) {
	// Intentionally unordered logs
	logs := []types.Log{
		{BlockNumber: 200, TxIndex: 1, Index: 7},
		{BlockNumber: 100, TxIndex: 2, Index: 9},
		{BlockNumber: 100, TxIndex: 0, Index: 1},
		{BlockNumber: 100, TxIndex: 0, Index: 0},
		{BlockNumber: 300, TxIndex: 0, Index: 0},
	}

	SortLogs(logs)

	// Verify order: (block ASC, tx_index ASC, log_index ASC)
	expected := []struct {
		block    uint64
		txIndex  uint
		logIndex uint
	}{
		{100, 0, 0},
		{100, 0, 1},
		{100, 2, 9},
		{200, 1, 7},
		{300, 0, 0},
	}

	for i, exp := range expected {
		if logs[i].BlockNumber != exp.block || logs[i].TxIndex != exp.txIndex || logs[i].Index != exp.logIndex {
			t.Errorf("Index %d: got (%d, %d, %d), want (%d, %d, %d)",
				i, logs[i].BlockNumber, logs[i].TxIndex, logs[i].Index,
				exp.block, exp.txIndex, exp.logIndex)
		}
	}
}

func TestSortLogs_Empty(t *testing.T) {
	var logs []types.Log
	SortLogs(logs) // Should not panic
}

func TestValidateLogOrdering(t *testing.T) {
	ordered := []types.Log{
		{BlockNumber: 1, TxIndex: 0, Index: 0},
		{BlockNumber: 1, TxIndex: 0, Index: 1},
		{BlockNumber: 2, TxIndex: 0, Index: 0},
	}
	if err := ValidateLogOrdering(ordered); err != nil {
		t.Errorf("expected ordered logs to validate, got %v", err)
	}

	unordered := []types.Log{
		{BlockNumber: 2, TxIndex: 0, Index: 0},
		{BlockNumber: 1, TxIndex: 0, Index: 0},
	}
	if err := ValidateLogOrdering(unordered); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("expected ErrInvalidOrdering, got %v", err)
	}

	duplicate := []types.Log{
		{BlockNumber: 1, TxIndex: 0, Index: 0},
		{BlockNumber: 1, TxIndex: 0, Index: 0},
	}
	if err := ValidateLogOrdering(duplicate); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("expected ErrInvalidOrdering for duplicate, got %v", err)
	}
}

func TestGroupByTx(t *testing.T) {
	logs := []types.Log{
		swapLog(1, 0, 0, bystander, tokenA, tokenB),
		swapLog(1, 0, 1, bystander, tokenB, tokenA),
		swapLog(1, 1, 2, bystander, tokenA, tokenB),
		swapLog(2, 0, 0, bystander, tokenA, tokenB),
	}

	groups := GroupByTx(logs)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[1]) != 1 || len(groups[2]) != 1 {
		t.Errorf("unexpected group sizes %d/%d/%d", len(groups[0]), len(groups[1]), len(groups[2]))
	}
	if groups[2][0].BlockNumber != 2 {
		t.Errorf("last group should be block 2, got %d", groups[2][0].BlockNumber)
	}

	if got := GroupByTx(nil); len(got) != 0 {
		t.Errorf("expected no groups for empty input, got %d", len(got))
	}
}

func TestSortAndGroupObservations(t *testing.T) {
	obs := func(tx string, block uint64, txIndex, logIndex uint) *domain.SwapEvent {
		return &domain.SwapEvent{SwapObservation: domain.SwapObservation{
			TxRef: tx, BlockNumber: block, TxIndex: txIndex, LogIndex: logIndex,
		}}
	}

	events := []*domain.SwapEvent{
		obs("0xc", 2, 0, 0),
		obs("0xb", 1, 1, 3),
		obs("0xa", 1, 0, 1),
		obs("0xa", 1, 0, 0),
	}

	SortObservations(events)
	groups := GroupObservationsByTx(events)

	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0][0].TxRef != "0xa" || len(groups[0]) != 2 || groups[0][0].LogIndex != 0 {
		t.Errorf("first group should be both logs of 0xa in log order")
	}
	if groups[1][0].TxRef != "0xb" || groups[2][0].TxRef != "0xc" {
		t.Errorf("unexpected group order %s, %s", groups[1][0].TxRef, groups[2][0].TxRef)
	}
}
