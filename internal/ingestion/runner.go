package ingestion

import (
	"context"
	"errors"
	"log"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"sandwich-watch/internal/observability"
	"sandwich-watch/internal/storage"
)

// Runner orchestrates continuous ingestion and detection.
type Runner struct {
	source         LogSource
	manager        *Manager
	checkpoints    storage.CheckpointStore
	router         common.Address
	blockLagWindow uint64        // Number of blocks to buffer for ordering
	flushInterval  time.Duration // Interval for periodic buffer flush
	logger         *log.Logger

	// Block-based buffer for deterministic ordering
	// Logs are grouped by block and processed once the block is finalized
	buffer       map[uint64][]types.Log
	highestBlock uint64 // Highest block seen
	stats        RunnerStats
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source          LogSource
	Manager         *Manager
	CheckpointStore storage.CheckpointStore // optional
	Router          common.Address
	BlockLagWindow  uint64        // Default: 3 blocks - wait this many blocks before processing
	FlushInterval   time.Duration // Default: 5s - force flush finalized blocks periodically
	Logger          *log.Logger
}

// RunnerStats contains counters accumulated by a Runner.
type RunnerStats struct {
	LogsReceived    int64
	BlocksProcessed int64
	Transactions    int64
	Swaps           int64
	Findings        int64
	Errors          int64
	RemovedLogs     int64
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	blockLagWindow := opts.BlockLagWindow
	if blockLagWindow == 0 {
		blockLagWindow = 3 // Wait 3 blocks for late logs and shallow reorgs
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		source:         opts.Source,
		manager:        opts.Manager,
		checkpoints:    opts.CheckpointStore,
		router:         opts.Router,
		blockLagWindow: blockLagWindow,
		flushInterval:  flushInterval,
		logger:         logger,
		buffer:         make(map[uint64][]types.Log),
	}
}

// Run starts continuous ingestion.
// It blocks until context is cancelled or the source closes.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting ingestion runner...")

	logsCh, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.logger.Println("Subscribed to router logs")

	// Ensures buffered blocks are processed even if no new higher blocks arrive
	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	r.logger.Printf("Runner started, block lag window: %d, flush interval: %v", r.blockLagWindow, r.flushInterval)

	for {
		select {
		case <-ctx.Done():
			// Flush all remaining logs before shutdown
			r.flushAllBlocks(context.WithoutCancel(ctx))
			r.logger.Println("Runner stopping...")
			return ctx.Err()

		case entry, ok := <-logsCh:
			if !ok {
				r.logger.Println("Log channel closed")
				r.flushAllBlocks(ctx)
				return errors.New("log channel closed")
			}
			r.bufferLog(ctx, entry)

		case <-flushTicker.C:
			// Respects blockLagWindow; flushAllBlocks is only used on shutdown
			r.processFinalizedBlocks(ctx)
		}
	}
}

// Stats returns a snapshot of runner counters.
func (r *Runner) Stats() RunnerStats {
	return r.stats
}

// bufferLog adds a log to the block buffer and processes finalized blocks.
func (r *Runner) bufferLog(ctx context.Context, entry types.Log) {
	r.stats.LogsReceived++

	if entry.Removed {
		r.dropRemoved(entry)
		return
	}

	block := entry.BlockNumber
	r.buffer[block] = append(r.buffer[block], entry)

	switch {
	case block > r.highestBlock:
		r.highestBlock = block
		observability.UpdateHighestBlock(block)
		r.processFinalizedBlocks(ctx)
	case r.highestBlock >= r.blockLagWindow && block <= r.highestBlock-r.blockLagWindow:
		// Late log for already-finalized block: process immediately
		r.processBlock(ctx, block)
	}

	observability.UpdateBufferSize(len(r.buffer))
}

// dropRemoved discards a buffered log retracted by a reorg.
func (r *Runner) dropRemoved(entry types.Log) {
	r.stats.RemovedLogs++

	logs, ok := r.buffer[entry.BlockNumber]
	if !ok {
		r.logger.Printf("Removed log for processed block %d (tx %s)", entry.BlockNumber, entry.TxHash.Hex())
		return
	}

	kept := logs[:0]
	for _, l := range logs {
		if l.TxHash == entry.TxHash && l.Index == entry.Index {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		delete(r.buffer, entry.BlockNumber)
	} else {
		r.buffer[entry.BlockNumber] = kept
	}
}

// processFinalizedBlocks processes all blocks at least blockLagWindow behind the highest.
func (r *Runner) processFinalizedBlocks(ctx context.Context) {
	if r.highestBlock < r.blockLagWindow {
		return
	}
	finalized := r.highestBlock - r.blockLagWindow

	var blocks []uint64
	for block := range r.buffer {
		if block <= finalized {
			blocks = append(blocks, block)
		}
	}
	slices.Sort(blocks)

	for _, block := range blocks {
		r.processBlock(ctx, block)
	}
}

// flushAllBlocks processes all remaining buffered logs on shutdown.
func (r *Runner) flushAllBlocks(ctx context.Context) {
	blocks := make([]uint64, 0, len(r.buffer))
	for block := range r.buffer {
		blocks = append(blocks, block)
	}
	slices.Sort(blocks)

	for _, block := range blocks {
		r.processBlock(ctx, block)
	}
}

// processBlock hands all logs of a single block to the manager in chain order.
func (r *Runner) processBlock(ctx context.Context, block uint64) {
	logs, ok := r.buffer[block]
	delete(r.buffer, block)
	observability.UpdateBufferSize(len(r.buffer))
	if !ok || len(logs) == 0 {
		return
	}

	result := r.manager.IngestLogs(ctx, logs)
	r.stats.BlocksProcessed++
	r.stats.Transactions += int64(result.Transactions)
	r.stats.Swaps += int64(result.Swaps)
	r.stats.Findings += int64(len(result.Findings))
	r.stats.Errors += int64(result.Errors)

	observability.DefaultMetrics.LastProcessedBlock.Set(float64(block))
	r.saveCheckpoint(ctx, block, logs[len(logs)-1].TxHash)
}

func (r *Runner) saveCheckpoint(ctx context.Context, block uint64, lastTx common.Hash) {
	if r.checkpoints == nil {
		return
	}

	cp, err := r.checkpoints.GetLastProcessed(ctx, r.router)
	if err == nil && cp.Block > block {
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger.Printf("Error reading checkpoint: %v", err)
		return
	}

	if err := r.checkpoints.SetLastProcessed(ctx, r.router, &storage.Checkpoint{
		Block:  block,
		TxHash: lastTx.Hex(),
	}); err != nil {
		r.logger.Printf("Error saving checkpoint for block %d: %v", block, err)
	}
}
