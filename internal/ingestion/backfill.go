package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/storage"
)

// HeadSource reports the chain head.
type HeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Backfiller handles historical ingestion over a block range.
type Backfiller struct {
	fetcher     LogFetcher
	head        HeadSource
	manager     *Manager
	checkpoints storage.CheckpointStore
	router      common.Address
	batchBlocks uint64
	logger      *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Fetcher         LogFetcher
	Head            HeadSource // required by Resume
	Manager         *Manager
	CheckpointStore storage.CheckpointStore // optional
	Router          common.Address
	BatchBlocks     uint64 // Default: 1000 blocks per checkpoint
	Logger          *log.Logger
}

// NewBackfiller creates a new historical backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	batchBlocks := opts.BatchBlocks
	if batchBlocks == 0 {
		batchBlocks = 1000
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Backfiller{
		fetcher:     opts.Fetcher,
		head:        opts.Head,
		manager:     opts.Manager,
		checkpoints: opts.CheckpointStore,
		router:      opts.Router,
		batchBlocks: batchBlocks,
		logger:      logger,
	}
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	FromBlock         uint64
	ToBlock           uint64
	LogsFetched       int
	Transactions      int
	Swaps             int
	Stored            int
	DuplicatesSkipped int
	Findings          int
	Errors            int
	Duration          time.Duration
}

// BackfillRange ingests blocks [from, to] in batches, saving a checkpoint after each.
func (b *Backfiller) BackfillRange(ctx context.Context, from, to uint64) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{FromBlock: from, ToBlock: to}

	if from > to {
		return result, nil
	}

	b.logger.Printf("Starting backfill from block %d to %d", from, to)

	for batchStart := from; batchStart <= to; {
		batchEnd := batchStart + b.batchBlocks - 1
		if batchEnd > to || batchEnd < batchStart {
			batchEnd = to
		}

		logs, err := b.fetcher.Fetch(ctx, batchStart, batchEnd)
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("fetch logs %d-%d: %w", batchStart, batchEnd, err)
		}
		result.LogsFetched += len(logs)

		batch := b.manager.IngestLogs(ctx, logs)
		result.Transactions += batch.Transactions
		result.Swaps += batch.Swaps
		result.Stored += batch.Stored
		result.DuplicatesSkipped += batch.Duplicates
		result.Findings += len(batch.Findings)
		result.Errors += batch.Errors

		if err := b.saveCheckpoint(ctx, batchEnd); err != nil {
			b.logger.Printf("Error saving checkpoint at block %d: %v", batchEnd, err)
		}

		b.logger.Printf("Backfilled blocks %d-%d: %d logs, %d swaps, %d findings",
			batchStart, batchEnd, len(logs), batch.Swaps, len(batch.Findings))

		if batchEnd == to {
			break
		}
		batchStart = batchEnd + 1
	}

	result.Duration = time.Since(start)
	b.logger.Printf("Backfill complete: %d txs, %d swaps, %d stored, %d dupes, %d findings, %d errors in %v",
		result.Transactions, result.Swaps, result.Stored, result.DuplicatesSkipped,
		result.Findings, result.Errors, result.Duration)

	return result, nil
}

// Resume backfills from the block after the saved checkpoint up to the chain head.
// Without a checkpoint it starts at defaultFrom.
func (b *Backfiller) Resume(ctx context.Context, defaultFrom uint64) (*BackfillResult, error) {
	if b.head == nil {
		return nil, errors.New("backfill resume: head source not configured")
	}

	from := defaultFrom
	if b.checkpoints != nil {
		cp, err := b.checkpoints.GetLastProcessed(ctx, b.router)
		switch {
		case err == nil:
			from = cp.Block + 1
			b.logger.Printf("Resuming after checkpoint block %d", cp.Block)
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("get checkpoint: %w", err)
		}
	}

	head, err := b.head.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get head block: %w", err)
	}

	return b.BackfillRange(ctx, from, head)
}

// saveCheckpoint advances the router checkpoint to block. Backfilling a range
// behind the live tip leaves a later checkpoint untouched.
func (b *Backfiller) saveCheckpoint(ctx context.Context, block uint64) error {
	if b.checkpoints == nil {
		return nil
	}

	cp, err := b.checkpoints.GetLastProcessed(ctx, b.router)
	if err == nil && cp.Block > block {
		return nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	return b.checkpoints.SetLastProcessed(ctx, b.router, &storage.Checkpoint{Block: block})
}
