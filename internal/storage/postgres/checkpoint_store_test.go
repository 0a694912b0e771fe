package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-watch/internal/storage"
)

func TestCheckpointStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCheckpointStore(pool)

	_, err := store.GetLastProcessed(ctx, testRouter)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetLastProcessed(ctx, testRouter, &storage.Checkpoint{Block: 100, TxHash: "0x1"}))
	require.NoError(t, store.SetLastProcessed(ctx, testRouter, &storage.Checkpoint{Block: 200, TxHash: "0x2"}))

	cp, err := store.GetLastProcessed(ctx, testRouter)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), cp.Block)
	assert.Equal(t, "0x2", cp.TxHash)

	assert.ErrorIs(t, store.SetLastProcessed(ctx, testRouter, nil), storage.ErrInvalidInput)
}
