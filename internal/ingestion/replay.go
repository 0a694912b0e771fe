package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

// Replayer replays detection from stored observations without RPC dependency.
type Replayer struct {
	store       storage.ObservationStore
	engine      TxHandler
	router      common.Address
	batchBlocks uint64
	logger      *log.Logger
}

// ReplayerOptions contains configuration for creating a Replayer.
type ReplayerOptions struct {
	ObservationStore storage.ObservationStore
	Engine           TxHandler // should be freshly created so history starts empty
	Router           common.Address
	BatchBlocks      uint64 // Default: 10000 blocks loaded per query
	Logger           *log.Logger
}

// NewReplayer creates a new detection replayer.
func NewReplayer(opts ReplayerOptions) *Replayer {
	batchBlocks := opts.BatchBlocks
	if batchBlocks == 0 {
		batchBlocks = 10000
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Replayer{
		store:       opts.ObservationStore,
		engine:      opts.Engine,
		router:      opts.Router,
		batchBlocks: batchBlocks,
		logger:      logger,
	}
}

// ReplayResult contains statistics from a replay operation.
type ReplayResult struct {
	ObservationsProcessed int
	Transactions          int
	Findings              []*domain.Finding
	Duration              time.Duration
}

// Replay feeds stored observations in [from, to] to the engine in chain order.
// Detection is deterministic, so a replay over the same range reproduces the
// findings of the original run.
func (r *Replayer) Replay(ctx context.Context, from, to uint64) (*ReplayResult, error) {
	start := time.Now()
	result := &ReplayResult{}

	r.logger.Printf("Starting replay from block %d to %d", from, to)

	for batchStart := from; batchStart <= to; {
		batchEnd := batchStart + r.batchBlocks - 1
		if batchEnd > to || batchEnd < batchStart {
			batchEnd = to
		}

		events, err := r.store.GetByBlockRange(ctx, r.router, batchStart, batchEnd)
		if err != nil {
			return result, fmt.Errorf("get observations from storage: %w", err)
		}

		SortObservations(events)
		for _, txEvents := range GroupObservationsByTx(events) {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Transactions++
			result.ObservationsProcessed += len(txEvents)
			result.Findings = append(result.Findings, r.engine.HandleTx(ctx, txEvents)...)
		}

		if batchEnd == to {
			break
		}
		batchStart = batchEnd + 1
	}

	result.Duration = time.Since(start)
	r.logger.Printf("Replay complete: %d observations, %d txs, %d findings in %v",
		result.ObservationsProcessed, result.Transactions, len(result.Findings), result.Duration)

	return result, nil
}
