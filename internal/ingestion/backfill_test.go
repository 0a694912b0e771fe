package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-watch/internal/ingestion/stub"
	"sandwich-watch/internal/storage"
	"sandwich-watch/internal/storage/memory"
)

var _ LogFetcher = (*stub.StubLogFetcher)(nil)

type fakeHead struct {
	block uint64
	err   error
}

func (h *fakeHead) BlockNumber(context.Context) (uint64, error) {
	return h.block, h.err
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, uint64, uint64) ([]types.Log, error) {
	return nil, errors.New("node unavailable")
}

func historicalLogs() []types.Log {
	logs := []types.Log{
		swapLog(22, 0, 0, bystander, tokenA, tokenB),
		swapLog(3, 0, 0, bystander, tokenB, tokenA),
	}
	// Sandwich spans the first batch boundary
	logs = append(logs,
		swapLog(9, 0, 0, frontrunner, tokenA, tokenB),
		swapLog(10, 4, 1, victim, tokenA, tokenB),
		swapLog(12, 0, 0, frontrunner, tokenB, tokenA),
	)
	return logs
}

func newTestBackfiller(p *testPipeline, fetcher LogFetcher, head HeadSource, checkpoints storage.CheckpointStore) *Backfiller {
	return NewBackfiller(BackfillOptions{
		Fetcher:         fetcher,
		Head:            head,
		Manager:         p.manager,
		CheckpointStore: checkpoints,
		Router:          testRouter,
		BatchBlocks:     10,
		Logger:          testLogger(),
	})
}

func TestBackfiller_BackfillRange(t *testing.T) {
	p := newTestPipeline()
	fetcher := stub.NewStubLogFetcher(historicalLogs())
	checkpoints := memory.NewCheckpointStore()
	b := newTestBackfiller(p, fetcher, nil, checkpoints)

	ctx := context.Background()
	result, err := b.BackfillRange(ctx, 1, 25)
	require.NoError(t, err)

	assert.Equal(t, [][2]uint64{{1, 10}, {11, 20}, {21, 25}}, fetcher.Calls())
	assert.Equal(t, 5, result.LogsFetched)
	assert.Equal(t, 5, result.Stored)
	assert.Equal(t, 1, result.Findings)
	assert.Len(t, p.sink.findings, 1)

	cp, err := checkpoints.GetLastProcessed(ctx, testRouter)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), cp.Block)
}

func TestBackfiller_CheckpointNeverMovesBackwards(t *testing.T) {
	tests := []struct {
		name     string
		existing uint64
		wantTx   string
		want     uint64
	}{
		{name: "checkpoint ahead of range", existing: 500, wantTx: "0xlive", want: 500},
		{name: "checkpoint inside range", existing: 15, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline()
			checkpoints := memory.NewCheckpointStore()
			ctx := context.Background()
			require.NoError(t, checkpoints.SetLastProcessed(ctx, testRouter,
				&storage.Checkpoint{Block: tt.existing, TxHash: "0xlive"}))

			b := newTestBackfiller(p, stub.NewStubLogFetcher(historicalLogs()), nil, checkpoints)
			_, err := b.BackfillRange(ctx, 1, 25)
			require.NoError(t, err)

			cp, err := checkpoints.GetLastProcessed(ctx, testRouter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cp.Block)
			assert.Equal(t, tt.wantTx, cp.TxHash)
		})
	}
}

func TestBackfiller_EmptyRange(t *testing.T) {
	p := newTestPipeline()
	fetcher := stub.NewStubLogFetcher(nil)
	b := newTestBackfiller(p, fetcher, nil, nil)

	result, err := b.BackfillRange(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, result.LogsFetched)
	assert.Empty(t, fetcher.Calls())
}

func TestBackfiller_ResumeFromCheckpoint(t *testing.T) {
	p := newTestPipeline()
	fetcher := stub.NewStubLogFetcher(historicalLogs())
	checkpoints := memory.NewCheckpointStore()
	ctx := context.Background()

	require.NoError(t, checkpoints.SetLastProcessed(ctx, testRouter, &storage.Checkpoint{Block: 10}))

	b := newTestBackfiller(p, fetcher, &fakeHead{block: 22}, checkpoints)
	result, err := b.Resume(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(11), result.FromBlock)
	assert.Equal(t, uint64(22), result.ToBlock)
	assert.Equal(t, [][2]uint64{{11, 20}, {21, 22}}, fetcher.Calls())
	assert.Equal(t, 2, result.LogsFetched)
}

func TestBackfiller_ResumeWithoutCheckpoint(t *testing.T) {
	p := newTestPipeline()
	fetcher := stub.NewStubLogFetcher(historicalLogs())
	b := newTestBackfiller(p, fetcher, &fakeHead{block: 12}, memory.NewCheckpointStore())

	result, err := b.Resume(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), result.FromBlock)
	assert.Equal(t, [][2]uint64{{5, 12}}, fetcher.Calls())
	assert.Equal(t, 1, result.Findings)
}

func TestBackfiller_ResumeErrors(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()

	b := newTestBackfiller(p, stub.NewStubLogFetcher(nil), nil, nil)
	_, err := b.Resume(ctx, 0)
	assert.Error(t, err, "resume needs a head source")

	b = newTestBackfiller(p, stub.NewStubLogFetcher(nil), &fakeHead{err: errors.New("timeout")}, nil)
	_, err = b.Resume(ctx, 0)
	assert.ErrorContains(t, err, "timeout")
}

func TestBackfiller_FetchErrorStops(t *testing.T) {
	p := newTestPipeline()
	checkpoints := memory.NewCheckpointStore()
	b := newTestBackfiller(p, failingFetcher{}, nil, checkpoints)

	_, err := b.BackfillRange(context.Background(), 1, 5)
	assert.ErrorContains(t, err, "node unavailable")

	_, err = checkpoints.GetLastProcessed(context.Background(), testRouter)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
