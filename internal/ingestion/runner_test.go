package ingestion

import (
	"context"
	"errors"
	"log"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-watch/internal/detection"
	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/ingestion/stub"
	"sandwich-watch/internal/observability"
	"sandwich-watch/internal/storage/memory"
)

var (
	testRouter  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenA      = common.HexToAddress("0x000000000000000000000000000000000000a001")
	tokenB      = common.HexToAddress("0x000000000000000000000000000000000000b002")
	frontrunner = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	victim      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bystander   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func txHash(block uint64, txIndex uint) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(txIndex)))
}

// swapLog builds a router log; fakeObserver reads the swap back from its topics.
func swapLog(block uint64, txIndex, logIndex uint, account, in, out common.Address) types.Log {
	return types.Log{
		Address: testRouter,
		Topics: []common.Hash{
			common.BytesToHash(account.Bytes()),
			common.BytesToHash(in.Bytes()),
			common.BytesToHash(out.Bytes()),
		},
		BlockNumber: block,
		TxHash:      txHash(block, txIndex),
		TxIndex:     txIndex,
		Index:       logIndex,
	}
}

// sandwichLogs returns a front/victim/back triple across blocks 1 and 2.
func sandwichLogs() []types.Log {
	return []types.Log{
		swapLog(1, 0, 0, frontrunner, tokenA, tokenB),
		swapLog(1, 1, 1, victim, tokenA, tokenB),
		swapLog(2, 0, 0, frontrunner, tokenB, tokenA),
	}
}

// fakeObserver decodes logs built by swapLog and records the transactions it saw.
type fakeObserver struct {
	txs    []common.Hash
	failTx common.Hash
}

func (f *fakeObserver) ObserveTx(_ context.Context, logs []types.Log) ([]*domain.SwapEvent, error) {
	f.txs = append(f.txs, logs[0].TxHash)
	if logs[0].TxHash == f.failTx {
		return nil, errors.New("resolve failed")
	}

	events := make([]*domain.SwapEvent, 0, len(logs))
	for _, l := range logs {
		events = append(events, &domain.SwapEvent{
			RouterMatched: true,
			SwapObservation: domain.SwapObservation{
				Account:     common.BytesToAddress(l.Topics[0].Bytes()),
				TokenIn:     common.BytesToAddress(l.Topics[1].Bytes()),
				TokenOut:    common.BytesToAddress(l.Topics[2].Bytes()),
				AmountIn:    uint256.NewInt(100),
				AmountOut:   uint256.NewInt(110),
				TxRef:       l.TxHash.Hex(),
				Router:      l.Address,
				BlockNumber: l.BlockNumber,
				TxIndex:     l.TxIndex,
				LogIndex:    l.Index,
			},
		})
	}
	return events, nil
}

type recordingSink struct {
	findings []*domain.Finding
}

func (s *recordingSink) Emit(_ context.Context, f *domain.Finding) error {
	s.findings = append(s.findings, f)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func newTestEngine(sink detection.FindingSink) *detection.Engine {
	return detection.NewEngine(detection.EngineOptions{
		Config:  detection.DefaultConfig(),
		Sink:    sink,
		Metrics: observability.NewMetrics("ingestion_test", prometheus.NewRegistry()),
		Logger:  testLogger(),
	})
}

type testPipeline struct {
	observer *fakeObserver
	store    *memory.ObservationStore
	sink     *recordingSink
	manager  *Manager
}

func newTestPipeline() *testPipeline {
	p := &testPipeline{
		observer: &fakeObserver{},
		store:    memory.NewObservationStore(),
		sink:     &recordingSink{},
	}
	p.manager = NewManager(ManagerOptions{
		Observer:         p.observer,
		ObservationStore: p.store,
		Engine:           newTestEngine(p.sink),
		Logger:           testLogger(),
	})
	return p
}

func (p *testPipeline) stored(t *testing.T, from, to uint64) []*domain.SwapEvent {
	t.Helper()
	events, err := p.store.GetByBlockRange(context.Background(), testRouter, from, to)
	require.NoError(t, err)
	return events
}

func TestRunner_BlockBasedOrdering(t *testing.T) {
	// Logs are processed in block order, not arrival order
	p := newTestPipeline()
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 2,
		Logger:         testLogger(),
	})

	ctx := context.Background()

	runner.bufferLog(ctx, swapLog(5, 0, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(3, 0, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(4, 0, 0, bystander, tokenA, tokenB))

	// Trigger processing by sending a higher block
	runner.bufferLog(ctx, swapLog(8, 0, 0, bystander, tokenA, tokenB))

	// Blocks 3, 4, 5 are finalized (8 - 2 = 6)
	assert.Len(t, runner.buffer, 1, "Only block 8 should remain in buffer")
	assert.Contains(t, runner.buffer, uint64(8))

	assert.Equal(t, []common.Hash{txHash(3, 0), txHash(4, 0), txHash(5, 0)}, p.observer.txs)
	assert.Len(t, p.stored(t, 0, 10), 3)
}

func TestRunner_FlushOnShutdown(t *testing.T) {
	p := newTestPipeline()
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 10, // High lag so nothing auto-processes
		Logger:         testLogger(),
	})

	ctx := context.Background()

	runner.bufferLog(ctx, swapLog(1, 0, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(2, 0, 0, bystander, tokenA, tokenB))
	assert.Len(t, runner.buffer, 2)

	runner.flushAllBlocks(ctx)

	assert.Empty(t, runner.buffer)
	assert.Len(t, p.stored(t, 0, 10), 2)
}

func TestRunner_LateLogProcessing(t *testing.T) {
	p := newTestPipeline()
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 3,
		Logger:         testLogger(),
	})

	ctx := context.Background()

	// Advance the block pointer
	runner.bufferLog(ctx, swapLog(10, 0, 0, bystander, tokenA, tokenB))

	// A late log for already-finalized block 5 is processed immediately
	runner.bufferLog(ctx, swapLog(5, 0, 0, bystander, tokenA, tokenB))

	assert.Len(t, p.stored(t, 0, 6), 1, "Late log should be processed immediately")
	assert.NotContains(t, runner.buffer, uint64(5))
}

func TestRunner_DeterministicOrdering(t *testing.T) {
	for run := 0; run < 5; run++ {
		p := newTestPipeline()
		runner := NewRunner(RunnerOptions{
			Manager:        p.manager,
			BlockLagWindow: 1,
			Logger:         testLogger(),
		})

		ctx := context.Background()

		// Same block, arrival order differs from chain order
		runner.bufferLog(ctx, swapLog(1, 2, 5, bystander, tokenA, tokenB))
		runner.bufferLog(ctx, swapLog(1, 0, 1, bystander, tokenA, tokenB))
		runner.bufferLog(ctx, swapLog(1, 1, 3, bystander, tokenA, tokenB))

		// Trigger finalization
		runner.bufferLog(ctx, swapLog(5, 0, 0, bystander, tokenA, tokenB))

		require.Len(t, p.observer.txs, 3)
		assert.Equal(t, txHash(1, 0), p.observer.txs[0], "Run %d: first should be tx 0", run)
		assert.Equal(t, txHash(1, 1), p.observer.txs[1], "Run %d: second should be tx 1", run)
		assert.Equal(t, txHash(1, 2), p.observer.txs[2], "Run %d: third should be tx 2", run)
	}
}

func TestRunner_GroupsLogsPerTransaction(t *testing.T) {
	p := newTestPipeline()
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 1,
		Logger:         testLogger(),
	})

	ctx := context.Background()

	runner.bufferLog(ctx, swapLog(1, 0, 1, bystander, tokenB, tokenA))
	runner.bufferLog(ctx, swapLog(1, 0, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(3, 0, 0, bystander, tokenA, tokenB))

	assert.Equal(t, []common.Hash{txHash(1, 0)}, p.observer.txs)
	assert.Equal(t, int64(1), runner.Stats().Transactions)
	assert.Equal(t, int64(2), runner.Stats().Swaps)
}

func TestRunner_DetectsSandwich(t *testing.T) {
	p := newTestPipeline()
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 1,
		Logger:         testLogger(),
	})

	ctx := context.Background()
	logs := sandwichLogs()

	// Victim arrives before the front-run within block 1
	runner.bufferLog(ctx, logs[1])
	runner.bufferLog(ctx, logs[0])
	runner.bufferLog(ctx, logs[2])
	runner.flushAllBlocks(ctx)

	require.Len(t, p.sink.findings, 1)
	f := p.sink.findings[0]
	assert.Equal(t, txHash(1, 0).Hex(), f.FrontTxRef)
	assert.Equal(t, txHash(1, 1).Hex(), f.VictimTxRef)
	assert.Equal(t, txHash(2, 0).Hex(), f.BackTxRef)
	assert.Equal(t, int64(1), runner.Stats().Findings)
}

func TestRunner_RemovedLogDropsBufferedEntry(t *testing.T) {
	p := newTestPipeline()
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 5,
		Logger:         testLogger(),
	})

	ctx := context.Background()

	entry := swapLog(1, 0, 0, bystander, tokenA, tokenB)
	runner.bufferLog(ctx, entry)
	runner.bufferLog(ctx, swapLog(1, 1, 1, bystander, tokenA, tokenB))

	removed := entry
	removed.Removed = true
	runner.bufferLog(ctx, removed)

	require.Len(t, runner.buffer[1], 1)
	assert.Equal(t, uint(1), runner.buffer[1][0].TxIndex)

	runner.flushAllBlocks(ctx)
	assert.Len(t, p.stored(t, 0, 10), 1)
	assert.Equal(t, int64(1), runner.Stats().RemovedLogs)
}

func TestRunner_SavesCheckpoint(t *testing.T) {
	p := newTestPipeline()
	checkpoints := memory.NewCheckpointStore()
	runner := NewRunner(RunnerOptions{
		Manager:         p.manager,
		CheckpointStore: checkpoints,
		Router:          testRouter,
		BlockLagWindow:  1,
		Logger:          testLogger(),
	})

	ctx := context.Background()
	runner.bufferLog(ctx, swapLog(1, 0, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(2, 3, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(3, 0, 0, bystander, tokenA, tokenB))

	cp, err := checkpoints.GetLastProcessed(ctx, testRouter)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cp.Block)
	assert.Equal(t, txHash(2, 3).Hex(), cp.TxHash)

	// A late block never moves the checkpoint backwards
	runner.bufferLog(ctx, swapLog(1, 5, 0, bystander, tokenA, tokenB))
	cp, err = checkpoints.GetLastProcessed(ctx, testRouter)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cp.Block)
}

func TestRunner_ObserverErrorDoesNotStopIngestion(t *testing.T) {
	p := newTestPipeline()
	p.observer.failTx = txHash(1, 0)
	runner := NewRunner(RunnerOptions{
		Manager:        p.manager,
		BlockLagWindow: 1,
		Logger:         testLogger(),
	})

	ctx := context.Background()
	runner.bufferLog(ctx, swapLog(1, 0, 0, bystander, tokenA, tokenB))
	runner.bufferLog(ctx, swapLog(1, 1, 1, bystander, tokenA, tokenB))
	runner.flushAllBlocks(ctx)

	assert.Equal(t, int64(1), runner.Stats().Errors)
	assert.Len(t, p.stored(t, 0, 10), 1)
}

func TestRunner_RunUntilSourceCloses(t *testing.T) {
	p := newTestPipeline()
	source := stub.NewStubLogSource(10)
	runner := NewRunner(RunnerOptions{
		Source:         source,
		Manager:        p.manager,
		BlockLagWindow: 10,
		FlushInterval:  time.Hour,
		Logger:         testLogger(),
	})

	for _, l := range sandwichLogs() {
		source.Send(l)
	}
	source.Close()

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	// Remaining blocks are flushed before returning
	assert.Len(t, p.stored(t, 0, 10), 3)
	assert.Len(t, p.sink.findings, 1)
}

func TestRunner_RunUntilCancelled(t *testing.T) {
	p := newTestPipeline()
	source := stub.NewStubLogSource(10)
	runner := NewRunner(RunnerOptions{
		Source:         source,
		Manager:        p.manager,
		BlockLagWindow: 10,
		FlushInterval:  time.Hour,
		Logger:         testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	source.Send(swapLog(1, 0, 0, bystander, tokenA, tokenB))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	assert.Len(t, p.stored(t, 0, 10), 1)
}

func TestRunner_DefaultValues(t *testing.T) {
	runner := NewRunner(RunnerOptions{})

	assert.Equal(t, uint64(3), runner.blockLagWindow, "Default block lag window should be 3")
	assert.Equal(t, 5*time.Second, runner.flushInterval, "Default flush interval should be 5s")
	assert.NotNil(t, runner.logger, "Logger should not be nil")
}
